package batch

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/events"
	"stockledger/pkg/logger"
)

// Service exposes batch queries and the enable/disable commands.
// Counter increments happen only through the posting engine.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a batch service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetBatchStatus returns the batch with derived availability and expiry state.
func (s *Service) GetBatchStatus(ctx context.Context, batchID id.ID) (View, error) {
	b, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return View{}, err
	}
	return b.ToView(s.now()), nil
}

// ListOutstanding returns enabled batches of an item that still have available quantity.
func (s *Service) ListOutstanding(ctx context.Context, itemCode string) ([]View, error) {
	list, err := s.repo.List(ctx, Filter{ItemCode: itemCode, OnlyAvailable: true})
	if err != nil {
		return nil, fmt.Errorf("list outstanding batches: %w", err)
	}
	return s.views(list), nil
}

// ListExpired returns batches past expiry that still hold available quantity.
func (s *Service) ListExpired(ctx context.Context) ([]View, error) {
	now := s.now()
	list, err := s.repo.List(ctx, Filter{OnlyAvailable: true, ExpiresBy: &now})
	if err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}
	return s.views(list), nil
}

// ScanExpiringSoon returns one BatchExpiringSoon per available batch expiring
// within days. The scan is pull-based; the worker decides where events go.
func (s *Service) ScanExpiringSoon(ctx context.Context, days int) ([]events.BatchExpiringSoon, error) {
	now := s.now()
	until := now.AddDate(0, 0, days)
	list, err := s.repo.List(ctx, Filter{OnlyAvailable: true, ExpiresAfter: &now, ExpiresBy: &until})
	if err != nil {
		return nil, fmt.Errorf("scan expiring batches: %w", err)
	}

	out := make([]events.BatchExpiringSoon, 0, len(list))
	for _, b := range list {
		if !b.IsExpiringSoon(now, days) {
			continue
		}
		left, _ := b.DaysToExpiry(now)
		out = append(out, events.BatchExpiringSoon{
			BatchID:    b.ID,
			BatchNo:    b.BatchNo,
			ItemCode:   b.ItemCode,
			ExpiryDate: *b.ExpiryDate,
			DaysLeft:   left,
			Available:  b.AvailableQuantity(),
			At:         now,
		})
	}

	logger.Debug(ctx, "expiring batch scan", "days", days, "found", len(out))
	return out, nil
}

// Disable retires a batch.
func (s *Service) Disable(ctx context.Context, batchID id.ID) (View, error) {
	return s.toggle(ctx, batchID, true)
}

// Enable re-activates a batch.
func (s *Service) Enable(ctx context.Context, batchID id.ID) (View, error) {
	return s.toggle(ctx, batchID, false)
}

func (s *Service) toggle(ctx context.Context, batchID id.ID, disable bool) (View, error) {
	b, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return View{}, err
	}

	now := s.now()
	next := b.Enable(now)
	if disable {
		next = b.Disable(now)
	}
	if next.Version == b.Version {
		return b.ToView(now), nil
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return View{}, fmt.Errorf("save batch: %w", err)
	}

	logger.Info(ctx, "batch visibility changed", "batch_id", batchID, "disabled", disable)
	return next.ToView(now), nil
}

func (s *Service) views(list []Batch) []View {
	now := s.now()
	out := make([]View, len(list))
	for i, b := range list {
		out[i] = b.ToView(now)
	}
	return out
}
