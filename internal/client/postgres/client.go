package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/client"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*client.Client, error) {
	var c client.Client
	err := r.db.WithContext(ctx).First(&c, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepository) List(ctx context.Context, limit, offset int) ([]*client.Client, error) {
	var clients []*client.Client
	err := r.db.WithContext(ctx).
		Model(&client.Client{}).
		Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ClientRepository) Update(ctx context.Context, c *client.Client) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *ClientRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&client.Client{}, id)
	return res.RowsAffected, res.Error
}

// Transact runs fn inside a database transaction, wiring the audit
// recorder to the same transaction so a failed audit write rolls back
// the client mutation.
func (r *ClientRepository) Transact(ctx context.Context, fn func(repo client.RepositoryAPI, rec audit.RecorderAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewClientRepository(tx), auditpg.NewAuditRepository(tx))
	})
}
