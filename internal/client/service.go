package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Client, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Create(ctx context.Context, actor *internal.Principal, dto CreateClientDTO) (*Client, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	kind := dto.Kind
	if kind == "" {
		kind = KindIndividual
	}

	c := &Client{
		Name:    dto.Name,
		Kind:    kind,
		Email:   dto.Email,
		Phone:   dto.Phone,
		Address: dto.Address,
		Notes:   dto.Notes,
	}

	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if err := repo.Create(ctx, c); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventClientCreate,
			ResourceType: "client",
			ResourceID:   c.ID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"name":%q}`, c.Name),
		})
	})
	if err != nil {
		s.logger.Error("create client failed", "error", err, "name", dto.Name)
		return nil, err
	}

	return c, nil
}

func (s *Service) Update(ctx context.Context, actor *internal.Principal, id int64, dto UpdateClientDTO) (*Client, error) {
	var updated *Client
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		c, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if dto.Name != nil {
			c.Name = *dto.Name
		}
		if dto.Email != nil {
			c.Email = *dto.Email
		}
		if dto.Phone != nil {
			c.Phone = *dto.Phone
		}
		if dto.Address != nil {
			c.Address = *dto.Address
		}
		if dto.Notes != nil {
			c.Notes = *dto.Notes
		}
		if err := repo.Update(ctx, c); err != nil {
			return err
		}
		updated = c
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventClientUpdate,
			ResourceType: "client",
			ResourceID:   c.ID,
			Outcome:      audit.OutcomeSuccess,
		})
	})
	if err != nil {
		s.logger.Error("update client failed", "error", err, "client_id", id)
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor *internal.Principal, id int64) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return internal.ErrClientNotFound
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventClientDelete,
			ResourceType: "client",
			ResourceID:   id,
			Outcome:      audit.OutcomeSuccess,
		})
	})
	if err != nil && err != internal.ErrClientNotFound {
		s.logger.Error("delete client failed", "error", err, "client_id", id)
	}
	return err
}
