package ledger

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

// Service provides ledger operations. It never touches balances; the posting
// engine wraps it together with stock levels and batches in one transaction.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PostEntry appends an immutable entry with StockValue = Qty × ValuationRate.
func (s *Service) PostEntry(ctx context.Context, p EntryParams) (StockLedgerEntry, error) {
	e, err := NewEntry(p, s.now())
	if err != nil {
		return StockLedgerEntry{}, err
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return StockLedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}

	logger.Debug(ctx, "ledger entry appended",
		"entry_id", e.ID,
		"key", e.Key().String(),
		"voucher_type", e.VoucherType,
		"qty", e.Qty.String(),
		"rate", e.ValuationRate.String(),
	)
	return e, nil
}

// CancelEntry sets the cancellation flag only. Balances are restored by the
// posting engine, which also posts the reversing entry.
func (s *Service) CancelEntry(ctx context.Context, entryID id.ID, cancelledBy, reason string) (StockLedgerEntry, error) {
	e, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return StockLedgerEntry{}, err
	}
	cancelled, err := e.Cancel(cancelledBy, reason, s.now())
	if err != nil {
		return StockLedgerEntry{}, err
	}
	if err := s.repo.MarkCancelled(ctx, entryID, cancelledBy, reason, *cancelled.CancelledAt); err != nil {
		return StockLedgerEntry{}, err
	}
	return cancelled, nil
}

// MetadataUpdate lists the fields that may change after posting.
type MetadataUpdate struct {
	Remarks   *string `json:"remarks"`
	Reference *string `json:"reference"`
}

// UpdateMetadata edits remarks or reference of an entry.
func (s *Service) UpdateMetadata(ctx context.Context, entryID id.ID, upd MetadataUpdate) (StockLedgerEntry, error) {
	if upd.Remarks == nil && upd.Reference == nil {
		return StockLedgerEntry{}, apperror.NewValidation("nothing to update")
	}
	if err := s.repo.UpdateMetadata(ctx, entryID, upd.Remarks, upd.Reference); err != nil {
		return StockLedgerEntry{}, err
	}
	return s.repo.GetByID(ctx, entryID)
}

// GetEntry returns a single entry.
func (s *Service) GetEntry(ctx context.Context, entryID id.ID) (StockLedgerEntry, error) {
	return s.repo.GetByID(ctx, entryID)
}

// List returns entries matching f, newest posting first.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalized()
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return Page{}, apperror.NewValidation("from must not be after to")
	}
	return s.repo.List(ctx, f)
}

// ListByVoucher returns all entries of one voucher.
func (s *Service) ListByVoucher(ctx context.Context, voucherType, voucherNo string) ([]StockLedgerEntry, error) {
	page, err := s.repo.List(ctx, Filter{VoucherType: voucherType, VoucherNo: voucherNo, Limit: MaxLimit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// BalanceAt sums the ledger for key up to asOf. Cancelled entries and their
// reversals cancel out, so no filtering is needed.
func (s *Service) BalanceAt(ctx context.Context, key stocklevel.Key, asOf time.Time) (types.Quantity, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	return s.repo.SumQty(ctx, key, &asOf)
}
