package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	// exportBatchSize pages through the repository during CSV export so a
	// large compliance export never loads the full range into memory.
	exportBatchSize = 1000
)

type ServiceAPI interface {
	List(ctx context.Context, f Filter) ([]*Entry, int64, error)
	ExportCSV(ctx context.Context, f Filter, w io.Writer) error
}

// Service is the read side of the audit log, used by compliance tooling.
// It is deliberately separate from the write-hot Recorder path.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Entry, int64, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}

	entries, err := s.repo.List(ctx, f)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		return nil, 0, err
	}

	total, err := s.repo.Count(ctx, f)
	if err != nil {
		s.logger.Error("failed to count audit entries", "error", err)
		return nil, 0, err
	}

	return entries, total, nil
}

var csvHeader = []string{
	"id", "tenant_id", "actor_id", "event_type", "resource_type",
	"resource_id", "outcome", "reason", "ip", "created_at",
}

// ExportCSV streams the filtered audit trail for compliance reporting.
func (s *Service) ExportCSV(ctx context.Context, f Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	f.Limit = exportBatchSize
	f.Offset = 0
	for {
		entries, err := s.repo.List(ctx, f)
		if err != nil {
			s.logger.Error("audit export failed", "error", err, "offset", f.Offset)
			return err
		}

		for _, e := range entries {
			record := []string{
				strconv.FormatInt(e.ID, 10),
				strconv.FormatInt(e.TenantID, 10),
				strconv.FormatInt(e.ActorID, 10),
				e.EventType,
				e.ResourceType,
				strconv.FormatInt(e.ResourceID, 10),
				e.Outcome,
				e.Reason,
				e.IP,
				e.CreatedAt.Format(time.RFC3339),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}

		if len(entries) < exportBatchSize {
			break
		}
		f.Offset += exportBatchSize
	}

	cw.Flush()
	return cw.Error()
}
