package expense

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	"github.com/astarworks/astar-management/internal/core/events"
)

type Service struct {
	repo    RepositoryAPI
	matters MatterLookup
	bus     *events.EventBus
	logger  *slog.Logger
}

// NewService wires the expense service. bus may be nil; it carries
// notification events only, the audit trail is written transactionally.
func NewService(repo RepositoryAPI, matters MatterLookup, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		matters: matters,
		bus:     bus,
		logger:  logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Expense, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Expense, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Submit records a new expense against a matter. Amounts under the
// auto-approval threshold skip the review queue.
func (s *Service) Submit(ctx context.Context, actor *internal.Principal, dto CreateExpenseDTO) (*Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.matters.MatterExists(ctx, dto.MatterID)
	if err != nil {
		s.logger.Error("matter lookup failed", "error", err, "matter_id", dto.MatterID)
		return nil, err
	}
	if !exists {
		return nil, internal.ErrMatterNotFound
	}

	now := time.Now()
	e := &Expense{
		MatterID:        dto.MatterID,
		UserID:          actor.UserID,
		AmountJPY:       dto.AmountJPY,
		Description:     dto.Description,
		Category:        dto.Category,
		ReceiptURL:      dto.ReceiptURL,
		ReceiptFileName: dto.ReceiptFileName,
		Status:          StatusPendingApproval,
		ExpenseDate:     dto.ExpenseDate,
		SubmittedAt:     now,
	}
	if e.ShouldBeAutoApproved() {
		e.Status = StatusApproved
		e.ProcessedAt = &now
	}

	err = s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if err := repo.Create(ctx, e); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventExpenseSubmit,
			ResourceType: "expense",
			ResourceID:   e.ID,
			Outcome:      audit.OutcomeSuccess,
			Detail: fmt.Sprintf(`{"matter_id":%d,"amount_jpy":%d,"status":%q}`,
				e.MatterID, e.AmountJPY, e.Status),
		})
	})
	if err != nil {
		s.logger.Error("submit expense failed", "error", err, "matter_id", dto.MatterID, "user_id", actor.UserID)
		return nil, err
	}

	s.logger.Info("expense submitted",
		"expense_id", e.ID,
		"matter_id", e.MatterID,
		"amount_jpy", e.AmountJPY,
		"status", e.Status)
	s.notify(ctx, EventExpenseSubmit, e)
	if e.Status == StatusApproved {
		s.notify(ctx, EventExpenseApprove, e)
	}

	return e, nil
}

func (s *Service) Approve(ctx context.Context, actor *internal.Principal, id int64) (*Expense, error) {
	var approved *Expense
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		e, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !e.CanBeApproved() {
			return internal.ErrInvalidStatus
		}

		now := time.Now()
		if err := repo.UpdateStatus(ctx, id, StatusApproved, "", now); err != nil {
			return err
		}
		e.Status = StatusApproved
		e.ProcessedAt = &now
		approved = e

		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventExpenseApprove,
			ResourceType: "expense",
			ResourceID:   id,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"amount_jpy":%d}`, e.AmountJPY),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("expense approved", "expense_id", id, "approver_id", actor.UserID)
	s.notify(ctx, EventExpenseApprove, approved)
	return approved, nil
}

func (s *Service) Reject(ctx context.Context, actor *internal.Principal, id int64, dto RejectExpenseDTO) (*Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var rejected *Expense
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		e, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !e.CanBeRejected() {
			return internal.ErrInvalidStatus
		}

		now := time.Now()
		if err := repo.UpdateStatus(ctx, id, StatusRejected, dto.Reason, now); err != nil {
			return err
		}
		e.Status = StatusRejected
		e.RejectReason = dto.Reason
		e.ProcessedAt = &now
		rejected = e

		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    EventExpenseReject,
			ResourceType: "expense",
			ResourceID:   id,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"reason":%q}`, dto.Reason),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("expense rejected", "expense_id", id, "reviewer_id", actor.UserID, "reason", dto.Reason)
	s.notify(ctx, EventExpenseReject, rejected)
	return rejected, nil
}

// notify publishes a lifecycle event for observers. Best effort: the bus
// never participates in the transaction.
func (s *Service) notify(ctx context.Context, eventType string, e *Expense) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, events.New(eventType, map[string]interface{}{
		"expense_id": e.ID,
		"matter_id":  e.MatterID,
		"amount_jpy": e.AmountJPY,
		"status":     e.Status,
	}))
}
