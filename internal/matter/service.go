package matter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

// Service owns matter lifecycle and team assignment. Route-level permission
// checks have already run by the time these methods execute; the service
// enforces the state machine and writes the data-mutation audit trail.
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

func (s *Service) GetByID(ctx context.Context, id int64) (*Matter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Matter, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Create(ctx context.Context, actor *internal.Principal, dto CreateMatterDTO) (*Matter, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ownerID := dto.OwnerID
	if ownerID == 0 {
		ownerID = actor.UserID
	}

	m := &Matter{
		ClientID:    dto.ClientID,
		OwnerID:     ownerID,
		Title:       dto.Title,
		Description: dto.Description,
		Department:  dto.Department,
		Status:      StatusOpen,
		OpenedAt:    time.Now(),
	}

	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if err := repo.Create(ctx, m); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventMatterCreate,
			ResourceType: "matter",
			ResourceID:   m.ID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"title":%q,"client_id":%d}`, m.Title, m.ClientID),
		})
	})
	if err != nil {
		s.logger.Error("create matter failed", "error", err, "client_id", dto.ClientID)
		return nil, err
	}

	return m, nil
}

func (s *Service) Update(ctx context.Context, actor *internal.Principal, id int64, dto UpdateMatterDTO) (*Matter, error) {
	var updated *Matter
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		m, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if dto.Title != nil {
			m.Title = *dto.Title
		}
		if dto.Description != nil {
			m.Description = *dto.Description
		}
		if dto.Department != nil {
			m.Department = *dto.Department
		}
		if dto.OwnerID != nil {
			m.OwnerID = *dto.OwnerID
		}
		if err := repo.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventMatterUpdate,
			ResourceType: "matter",
			ResourceID:   m.ID,
			Outcome:      audit.OutcomeSuccess,
		})
	})
	if err != nil {
		s.logger.Error("update matter failed", "error", err, "matter_id", id)
		return nil, err
	}
	return updated, nil
}

func (s *Service) ChangeStatus(ctx context.Context, actor *internal.Principal, id int64, dto ChangeStatusDTO) (*Matter, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var updated *Matter
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		m, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if !validStatusTransition(m.Status, dto.Status) {
			return internal.ErrInvalidStatus
		}

		from := m.Status
		m.Status = dto.Status
		switch dto.Status {
		case StatusClosed:
			now := time.Now()
			m.ClosedAt = &now
		case StatusOpen:
			m.ClosedAt = nil
		}

		if err := repo.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventMatterStatus,
			ResourceType: "matter",
			ResourceID:   m.ID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"from":%q,"to":%q}`, from, dto.Status),
		})
	})
	if err != nil {
		if err != internal.ErrInvalidStatus {
			s.logger.Error("change matter status failed", "error", err, "matter_id", id)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) Assign(ctx context.Context, actor *internal.Principal, matterID int64, dto AssignDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if _, err := repo.GetByID(ctx, matterID); err != nil {
			return err
		}
		if err := repo.Assign(ctx, &Assignment{MatterID: matterID, UserID: dto.UserID, Role: dto.Role}); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventMatterAssign,
			ResourceType: "matter",
			ResourceID:   matterID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"user_id":%d,"role":%q}`, dto.UserID, dto.Role),
		})
	})
	if err != nil {
		s.logger.Error("assign to matter failed", "error", err, "matter_id", matterID, "user_id", dto.UserID)
	}
	return err
}

func (s *Service) Unassign(ctx context.Context, actor *internal.Principal, matterID, userID int64) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		removed, err := repo.Unassign(ctx, matterID, userID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return internal.ErrMatterNotFound
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventMatterUnassign,
			ResourceType: "matter",
			ResourceID:   matterID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"user_id":%d}`, userID),
		})
	})
	if err != nil && err != internal.ErrMatterNotFound {
		s.logger.Error("unassign from matter failed", "error", err, "matter_id", matterID, "user_id", userID)
	}
	return err
}

func (s *Service) ListAssignments(ctx context.Context, matterID int64) ([]*Assignment, error) {
	return s.repo.ListAssignments(ctx, matterID)
}
