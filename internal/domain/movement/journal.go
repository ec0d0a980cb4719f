package movement

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// JournalRecord is the outcome of one movement request.
type JournalRecord struct {
	Movement     StockMovement `json:"movement"`
	Status       Status        `json:"status"`
	EntryID      *id.ID        `json:"entryId,omitempty"`
	ErrorCode    string        `json:"errorCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	RecordedAt   time.Time     `json:"recordedAt"`
}

// Journal keeps the request history of movements, posted and rejected alike.
// It is written after the posting transaction ends and never feeds balances.
type Journal interface {
	Record(ctx context.Context, rec JournalRecord) error
	Get(ctx context.Context, movementID id.ID) (JournalRecord, error)
}
