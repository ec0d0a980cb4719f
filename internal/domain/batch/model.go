// Package batch tracks per-batch quantities and expiry.
//
// A Batch is an immutable snapshot: every operation returns the next snapshot
// plus the event it produced. Quantity counters only ever grow, so the history
// of a batch can be read off its counters without replaying the ledger.
package batch

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
)

// Counter names one of the forward-only quantity counters.
type Counter string

const (
	CounterReceived   Counter = "received"
	CounterTransfer   Counter = "transfer"
	CounterConsumed   Counter = "consumed"
	CounterDispatched Counter = "dispatched"
	CounterReturned   Counter = "returned"
	CounterScrapped   Counter = "scrapped"
	CounterSample     Counter = "sample"
)

// Attributes are the descriptive fields set when a batch is first received.
type Attributes struct {
	ExpiryDate         *time.Time `json:"expiryDate,omitempty"`
	ManufacturingDate  *time.Time `json:"manufacturingDate,omitempty"`
	WarrantyExpiryDate *time.Time `json:"warrantyExpiryDate,omitempty"`
	SupplierRef        string     `json:"supplierRef,omitempty"`
}

// Batch is a traceable sub-lot of one item.
type Batch struct {
	ID       id.ID  `db:"id" json:"id"`
	BatchNo  string `db:"batch_no" json:"batchNo"`
	ItemCode string `db:"item_code" json:"itemCode"`

	ExpiryDate         *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	ManufacturingDate  *time.Time `db:"manufacturing_date" json:"manufacturingDate,omitempty"`
	WarrantyExpiryDate *time.Time `db:"warranty_expiry_date" json:"warrantyExpiryDate,omitempty"`
	SupplierRef        string     `db:"supplier_ref" json:"supplierRef,omitempty"`

	Quantity           types.Quantity `db:"quantity" json:"quantity"`
	TransferQuantity   types.Quantity `db:"transfer_quantity" json:"transferQuantity"`
	ConsumedQuantity   types.Quantity `db:"consumed_quantity" json:"consumedQuantity"`
	DispatchedQuantity types.Quantity `db:"dispatched_quantity" json:"dispatchedQuantity"`
	ReturnedQuantity   types.Quantity `db:"returned_quantity" json:"returnedQuantity"`
	ScrappedQuantity   types.Quantity `db:"scrapped_quantity" json:"scrappedQuantity"`

	RetainSample   bool           `db:"retain_sample" json:"retainSample"`
	SampleQuantity types.Quantity `db:"sample_quantity" json:"sampleQuantity"`

	Disabled  bool      `db:"disabled" json:"disabled"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Create builds a new batch from its first receipt.
func Create(itemCode, batchNo string, initialQty types.Quantity, attrs Attributes, now time.Time) (Batch, events.Event, error) {
	itemCode = strings.TrimSpace(itemCode)
	batchNo = strings.TrimSpace(batchNo)
	if itemCode == "" || batchNo == "" {
		return Batch{}, nil, apperror.NewInvalidMovement("batch requires item code and batch number")
	}
	if !initialQty.IsPositive() {
		return Batch{}, nil, apperror.NewInvalidMovement("initial batch quantity must be positive").
			WithDetail("quantity", initialQty.String())
	}

	b := Batch{
		ID:                 id.New(),
		BatchNo:            batchNo,
		ItemCode:           itemCode,
		ExpiryDate:         attrs.ExpiryDate,
		ManufacturingDate:  attrs.ManufacturingDate,
		WarrantyExpiryDate: attrs.WarrantyExpiryDate,
		SupplierRef:        attrs.SupplierRef,
		Quantity:           initialQty,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return b, b.event(CounterReceived, initialQty, now), nil
}

// AvailableQuantity = Quantity − Consumed − Dispatched − Scrapped + Returned.
func (b Batch) AvailableQuantity() types.Quantity {
	return b.Quantity - b.ConsumedQuantity - b.DispatchedQuantity - b.ScrappedQuantity + b.ReturnedQuantity
}

func (b Batch) HasAvailableQuantity() bool {
	return b.AvailableQuantity().IsPositive()
}

// IsExpired reports ExpiryDate ≤ now. Batches without expiry never expire.
func (b Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && !b.ExpiryDate.After(now)
}

// IsExpiringSoon reports now < ExpiryDate ≤ now+days.
func (b Batch) IsExpiringSoon(now time.Time, days int) bool {
	if b.ExpiryDate == nil || !b.ExpiryDate.After(now) {
		return false
	}
	return !b.ExpiryDate.After(now.AddDate(0, 0, days))
}

// DaysToExpiry returns whole days left until expiry, negative once expired.
func (b Batch) DaysToExpiry(now time.Time) (int, bool) {
	if b.ExpiryDate == nil {
		return 0, false
	}
	return int(b.ExpiryDate.Sub(now).Hours() / 24), true
}

// AddReceivedQuantity records a further receipt into an existing batch.
func (b Batch) AddReceivedQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterReceived, qty, now)
}

// AddTransferQuantity records quantity moved between locations. Availability is unchanged.
func (b Batch) AddTransferQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterTransfer, qty, now)
}

func (b Batch) AddConsumedQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterConsumed, qty, now)
}

func (b Batch) AddDispatchedQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterDispatched, qty, now)
}

func (b Batch) AddReturnedQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterReturned, qty, now)
}

func (b Batch) AddScrappedQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	return b.Add(CounterScrapped, qty, now)
}

// Add increments one counter. It is the single mutation path of a batch.
func (b Batch) Add(counter Counter, qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	if !qty.IsPositive() {
		return b, nil, apperror.NewInvalidMovement("batch quantity must be positive").
			WithDetail("batch_no", b.BatchNo).
			WithDetail("quantity", qty.String())
	}
	if b.Disabled {
		return b, nil, apperror.NewInvalidMovement("batch is disabled").
			WithDetail("batch_no", b.BatchNo)
	}

	available := b.AvailableQuantity()
	switch counter {
	case CounterReceived:
		sum, ok := b.Quantity.AddChecked(qty)
		if !ok {
			return b, nil, apperror.NewInvalidMovement("receipt overflows batch quantity").
				WithDetail("batch_no", b.BatchNo)
		}
		b.Quantity = sum
	case CounterTransfer:
		if qty > available {
			return b, nil, b.insufficient(qty, available)
		}
		b.TransferQuantity += qty
	case CounterConsumed, CounterDispatched, CounterScrapped:
		if qty > available {
			return b, nil, b.insufficient(qty, available)
		}
		switch counter {
		case CounterConsumed:
			b.ConsumedQuantity += qty
		case CounterDispatched:
			b.DispatchedQuantity += qty
		default:
			b.ScrappedQuantity += qty
		}
	case CounterReturned:
		// A return can only give back what left the batch.
		if available+qty > b.Quantity {
			return b, nil, apperror.NewNegativeQuantity("return exceeds quantity issued from batch").
				WithDetail("batch_no", b.BatchNo).
				WithDetail("requested", qty.String()).
				WithDetail("outstanding", (b.Quantity - available).String())
		}
		b.ReturnedQuantity += qty
	default:
		return b, nil, apperror.NewInvalidMovement("unknown batch counter").WithDetail("counter", string(counter))
	}

	b = b.touch(now)
	return b, b.event(counter, qty, now), nil
}

// AddSampleQuantity earmarks qty as a retained sample. Samples stay part of available stock.
func (b Batch) AddSampleQuantity(qty types.Quantity, now time.Time) (Batch, events.Event, error) {
	if !qty.IsPositive() {
		return b, nil, apperror.NewInvalidMovement("sample quantity must be positive")
	}
	if b.SampleQuantity+qty > b.AvailableQuantity() {
		return b, nil, b.insufficient(b.SampleQuantity+qty, b.AvailableQuantity())
	}
	b.RetainSample = true
	b.SampleQuantity += qty
	b = b.touch(now)
	return b, b.event(CounterSample, qty, now), nil
}

// Disable retires the batch from postings without deleting history.
func (b Batch) Disable(now time.Time) Batch {
	if b.Disabled {
		return b
	}
	b.Disabled = true
	return b.touch(now)
}

// Enable makes a disabled batch postable again.
func (b Batch) Enable(now time.Time) Batch {
	if !b.Disabled {
		return b
	}
	b.Disabled = false
	return b.touch(now)
}

func (b Batch) touch(now time.Time) Batch {
	b.Version++
	b.UpdatedAt = now
	return b
}

func (b Batch) insufficient(requested, available types.Quantity) *apperror.AppError {
	return apperror.NewInsufficientStock("batch/"+b.BatchNo, requested.String(), available.String()).
		WithDetail("batch_id", b.ID.String())
}

func (b Batch) event(counter Counter, qty types.Quantity, now time.Time) events.Event {
	return events.BatchQuantityUpdated{
		BatchID:   b.ID,
		BatchNo:   b.BatchNo,
		ItemCode:  b.ItemCode,
		Counter:   string(counter),
		Delta:     qty,
		Available: b.AvailableQuantity(),
		At:        now,
	}
}

// View is the read model returned to collaborators.
type View struct {
	Batch
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	Expired           bool           `json:"expired"`
	DaysToExpiry      *int           `json:"daysToExpiry,omitempty"`
}

// ToView evaluates the derived fields at now.
func (b Batch) ToView(now time.Time) View {
	v := View{
		Batch:             b,
		AvailableQuantity: b.AvailableQuantity(),
		Expired:           b.IsExpired(now),
	}
	if days, ok := b.DaysToExpiry(now); ok {
		v.DaysToExpiry = &days
	}
	return v
}
