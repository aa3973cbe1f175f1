package postgres

import (
	"context"
	"time"

	"github.com/astarworks/astar-management/internal/audit"
	"gorm.io/gorm"
)

// AuditRepository implements audit.RepositoryAPI using GORM. Inserts ride
// the tenant row filter like every other scoped table; the purge path runs
// under a system session started by the retention worker.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, e *audit.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) Count(ctx context.Context, f audit.Filter) (int64, error) {
	var n int64
	err := r.filtered(ctx, f).Model(&audit.Entry{}).Count(&n).Error
	return n, err
}

func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	// Batched so retention never holds a long transaction on a hot table.
	res := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.WithContext(ctx).
			Model(&audit.Entry{}).
			Select("id").
			Where("created_at < ?", cutoff).
			Limit(batchSize)).
		Delete(&audit.Entry{})
	return res.RowsAffected, res.Error
}

func (r *AuditRepository) filtered(ctx context.Context, f audit.Filter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if f.ActorID != 0 {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	return q
}
