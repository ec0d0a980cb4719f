// Package events defines the domain events emitted by the stock ledger.
//
// Every state-changing operation on a StockLevel or Batch returns the event it
// produced alongside the new state. The posting engine collects them and hands
// them to a Publisher inside the posting transaction, so subscribers (accounting,
// compliance) only ever see events for movements that actually committed.
package events

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Event type names.
const (
	TypeLedgerEntryCreated        = "StockLedgerEntryCreated"
	TypeLedgerEntryCancelled      = "StockLedgerEntryCancelled"
	TypeStockLevelReceived        = "StockLevelReceived"
	TypeStockLevelIssued          = "StockLevelIssued"
	TypeStockLevelReserved        = "StockLevelReserved"
	TypeStockLevelReleaseReserved = "StockLevelReleaseReserved"
	TypeStockLevelAdjusted        = "StockLevelAdjusted"
	TypeBatchQuantityUpdated      = "BatchQuantityUpdated"
	TypeBatchExpiringSoon         = "BatchExpiringSoon"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() string
	OccurredAt() time.Time
	// AggregateKey groups events of one balance or batch, used as outbox partition key.
	AggregateKey() string
}

// Publisher receives events produced by a committed (or committing) posting.
type Publisher interface {
	Publish(ctx context.Context, evts []Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evts []Event) error

func (f PublisherFunc) Publish(ctx context.Context, evts []Event) error { return f(ctx, evts) }

// Discard drops all events.
var Discard Publisher = PublisherFunc(func(context.Context, []Event) error { return nil })

// LevelKey carries the identity of a stock level in events.
type LevelKey struct {
	ItemCode      string `json:"itemCode"`
	WarehouseCode string `json:"warehouseCode"`
	BinCode       string `json:"binCode,omitempty"`
}

func (k LevelKey) String() string {
	return k.ItemCode + "/" + k.WarehouseCode + "/" + k.BinCode
}

// StockLedgerEntryCreated is raised for every appended ledger entry.
type StockLedgerEntryCreated struct {
	EntryID       id.ID          `json:"entryId"`
	MovementID    id.ID          `json:"movementId"`
	Key           LevelKey       `json:"key"`
	VoucherType   string         `json:"voucherType"`
	VoucherNo     string         `json:"voucherNo"`
	Qty           types.Quantity `json:"qty"`
	ValuationRate types.Money    `json:"valuationRate"`
	StockValue    types.Money    `json:"stockValue"`
	At            time.Time      `json:"occurredAt"`
}

func (e StockLedgerEntryCreated) EventType() string     { return TypeLedgerEntryCreated }
func (e StockLedgerEntryCreated) OccurredAt() time.Time { return e.At }
func (e StockLedgerEntryCreated) AggregateKey() string  { return e.Key.String() }

// StockLedgerEntryCancelled is raised when an entry gets its cancellation flag.
type StockLedgerEntryCancelled struct {
	EntryID     id.ID     `json:"entryId"`
	ReversalID  id.ID     `json:"reversalId"`
	Key         LevelKey  `json:"key"`
	CancelledBy string    `json:"cancelledBy"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"occurredAt"`
}

func (e StockLedgerEntryCancelled) EventType() string     { return TypeLedgerEntryCancelled }
func (e StockLedgerEntryCancelled) OccurredAt() time.Time { return e.At }
func (e StockLedgerEntryCancelled) AggregateKey() string  { return e.Key.String() }

// StockLevelChanged is the shared payload of all StockLevel events.
// Kind holds one of the TypeStockLevel* names.
type StockLevelChanged struct {
	Kind             string         `json:"kind"`
	Key              LevelKey       `json:"key"`
	Delta            types.Quantity `json:"delta"`
	Quantity         types.Quantity `json:"quantity"`
	ReservedQuantity types.Quantity `json:"reservedQuantity"`
	UnitCost         types.Money    `json:"unitCost"`
	At               time.Time      `json:"occurredAt"`
}

func (e StockLevelChanged) EventType() string     { return e.Kind }
func (e StockLevelChanged) OccurredAt() time.Time { return e.At }
func (e StockLevelChanged) AggregateKey() string  { return e.Key.String() }

// BatchQuantityUpdated is raised whenever a batch counter moves.
type BatchQuantityUpdated struct {
	BatchID   id.ID          `json:"batchId"`
	BatchNo   string         `json:"batchNo"`
	ItemCode  string         `json:"itemCode"`
	Counter   string         `json:"counter"`
	Delta     types.Quantity `json:"delta"`
	Available types.Quantity `json:"available"`
	At        time.Time      `json:"occurredAt"`
}

func (e BatchQuantityUpdated) EventType() string     { return TypeBatchQuantityUpdated }
func (e BatchQuantityUpdated) OccurredAt() time.Time { return e.At }
func (e BatchQuantityUpdated) AggregateKey() string  { return "batch/" + e.BatchID.String() }

// BatchExpiringSoon is produced by the expiry scan, not by postings.
type BatchExpiringSoon struct {
	BatchID    id.ID          `json:"batchId"`
	BatchNo    string         `json:"batchNo"`
	ItemCode   string         `json:"itemCode"`
	ExpiryDate time.Time      `json:"expiryDate"`
	DaysLeft   int            `json:"daysLeft"`
	Available  types.Quantity `json:"available"`
	At         time.Time      `json:"occurredAt"`
}

func (e BatchExpiringSoon) EventType() string     { return TypeBatchExpiringSoon }
func (e BatchExpiringSoon) OccurredAt() time.Time { return e.At }
func (e BatchExpiringSoon) AggregateKey() string  { return "batch/" + e.BatchID.String() }

// Collector is an in-memory Publisher, used by tests and the memory store.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Publish(_ context.Context, evts []Event) error {
	c.mu.Lock()
	c.events = append(c.events, evts...)
	c.mu.Unlock()
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Types lists the event types in publication order.
func (c *Collector) Types() []string {
	evts := c.Events()
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.EventType())
	}
	return out
}
