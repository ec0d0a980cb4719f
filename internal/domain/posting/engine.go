// Package posting is the single write path of the stock ledger.
//
// A movement is validated, the balances and batch it touches are locked, and
// then one transaction appends the ledger entry, updates the stock level and
// batch counters and publishes the events. Either all of it commits or none of it.
package posting

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/domain/valuation"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/posting")

// DefaultLockTimeout bounds how long a posting waits for its keys.
const DefaultLockTimeout = 5 * time.Second

// Config wires the engine. TxManager and the four repositories are required.
type Config struct {
	TxManager  tx.Manager
	Ledger     ledger.Repository
	Levels     stocklevel.Repository
	Batches    batch.Repository
	EntryTypes movement.EntryTypeRepository

	// Catalog is optional; without it item and location codes are not checked.
	Catalog catalog.Lookup
	// Locker defaults to a LocalLocker, enough for a single process.
	Locker Locker
	// Publisher receives events inside the posting transaction.
	Publisher events.Publisher
	// Journal is optional and written after the transaction ends.
	Journal movement.Journal
	// Vouchers numbers movements posted without a voucher number. Without it
	// such movements use their ID.
	Vouchers VoucherNumberer

	Clock       func() time.Time
	LockTimeout time.Duration
}

// VoucherNumberer allocates the next number of a voucher series. It is called
// inside the posting transaction.
type VoucherNumberer interface {
	Next(ctx context.Context, series string, at time.Time) (string, error)
}

// VoucherSeries maps movement types to voucher number prefixes.
var VoucherSeries = map[movement.Type]string{
	movement.TypeReceipt:    "REC",
	movement.TypeIssue:      "ISS",
	movement.TypeAdjustment: "ADJ",
	movement.TypeTransfer:   "TRF",
	movement.TypeReturn:     "RET",
	movement.TypeDamage:     "DMG",
	movement.TypeExpiry:     "EXP",
}

// Engine orchestrates postings.
type Engine struct {
	txm         tx.Manager
	ledger      *ledger.Service
	entries     ledger.Repository
	levels      stocklevel.Repository
	batches     batch.Repository
	entryTypes  movement.EntryTypeRepository
	catalog     catalog.Lookup
	locker      Locker
	publisher   events.Publisher
	journal     movement.Journal
	vouchers    VoucherNumberer
	now         func() time.Time
	lockTimeout time.Duration
}

// NewEngine creates a posting engine.
func NewEngine(cfg Config) *Engine {
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Discard
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &Engine{
		txm:         cfg.TxManager,
		ledger:      ledger.NewService(cfg.Ledger).WithClock(now),
		entries:     cfg.Ledger,
		levels:      cfg.Levels,
		batches:     cfg.Batches,
		entryTypes:  cfg.EntryTypes,
		catalog:     cfg.Catalog,
		locker:      locker,
		publisher:   publisher,
		journal:     cfg.Journal,
		vouchers:    cfg.Vouchers,
		now:         now,
		lockTimeout: lockTimeout,
	}
}

// Result is the outcome of a posted movement.
type Result struct {
	MovementID  id.ID                    `json:"movementId"`
	Status      movement.Status          `json:"status"`
	Entry       ledger.StockLedgerEntry  `json:"entry"`
	Counterpart *ledger.StockLedgerEntry `json:"counterpart,omitempty"`
	Level       stocklevel.View          `json:"level"`
	TargetLevel *stocklevel.View         `json:"targetLevel,omitempty"`
	Batch       *batch.View              `json:"batch,omitempty"`
	Events      []events.Event           `json:"-"`
}

// PostMovement applies m atomically: ledger entry, stock level, batch, events.
// A transfer additionally posts the incoming leg at its target.
func (e *Engine) PostMovement(ctx context.Context, m movement.StockMovement) (Result, error) {
	ctx, span := tracer.Start(ctx, "posting.PostMovement", trace.WithAttributes(
		attribute.String("movement.id", m.ID.String()),
		attribute.String("movement.type", string(m.Type)),
		attribute.String("movement.key", m.Key().String()),
	))
	defer span.End()

	res, err := e.postMovement(ctx, m)
	e.record(ctx, m, res, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		logger.Warn(ctx, "movement rejected",
			"movement_id", m.ID,
			"type", m.Type,
			"key", m.Key().String(),
			"code", apperror.CodeOf(err),
			"error", err,
		)
		return Result{MovementID: m.ID, Status: movement.StatusRejected}, err
	}

	logger.Info(ctx, "movement posted",
		"movement_id", m.ID,
		"type", m.Type,
		"key", m.Key().String(),
		"qty", res.Entry.Qty.String(),
		"rate", res.Entry.ValuationRate.String(),
		"qty_after", res.Level.Quantity.String(),
	)
	return res, nil
}

func (e *Engine) postMovement(ctx context.Context, m movement.StockMovement) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	et, err := e.entryType(ctx, m.Type)
	if err != nil {
		return Result{}, err
	}
	if err := et.Check(m); err != nil {
		return Result{}, err
	}
	if err := e.checkCatalog(ctx, m); err != nil {
		return Result{}, err
	}

	src := m.Key()
	var dst *stocklevel.Key
	if m.Type == movement.TypeTransfer {
		k, err := transferTarget(m, et)
		if err != nil {
			return Result{}, err
		}
		dst = &k
	}

	locks := []string{levelLock(src)}
	if dst != nil {
		locks = append(locks, levelLock(*dst))
	}
	if m.BatchNo != "" {
		locks = append(locks, batchLock(m.ItemCode, m.BatchNo))
	}
	unlock, err := e.lock(ctx, locks)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var res Result
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.apply(ctx, m, et, src, dst)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// apply runs inside the transaction with all keys locked.
func (e *Engine) apply(ctx context.Context, m movement.StockMovement, et movement.StockEntryType, src stocklevel.Key, dst *stocklevel.Key) (Result, error) {
	posted, err := e.entries.ExistsForMovement(ctx, m.ID)
	if err != nil {
		return Result{}, fmt.Errorf("check movement %s: %w", m.ID, err)
	}
	if posted {
		return Result{}, apperror.NewAlreadyPosted(m.ID.String())
	}
	if m.VoucherNo == "" && e.vouchers != nil {
		no, err := e.vouchers.Next(ctx, VoucherSeries[m.Type], m.PostingDate)
		if err != nil {
			return Result{}, fmt.Errorf("number voucher: %w", err)
		}
		m.VoucherNo = no
	}

	now := e.now()
	level, err := e.levels.GetForUpdate(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("load stock level %s: %w", src, err)
	}

	var (
		rate     types.Money
		next     stocklevel.StockLevel
		levelEvt events.Event
	)
	if m.IsIncoming() {
		// Zero unit cost means "at the current rate", which leaves the average unchanged.
		rate = m.UnitCost
		if rate.IsZero() {
			rate = level.UnitCost
		}
		avg := valuation.IncomingRate(level.Quantity, level.UnitCost, m.Quantity, rate)
		next, levelEvt, err = level.ReceiveStock(m.Quantity, avg, now)
	} else {
		rate = level.UnitCost
		if et.AllowNegativeStock {
			next, levelEvt, err = level.IssueStockAllowNegative(m.Quantity, now)
		} else {
			next, levelEvt, err = level.IssueStock(m.Quantity, now)
		}
	}
	if err != nil {
		return Result{}, err
	}

	b, batchEvt, err := e.applyBatch(ctx, m, et, now)
	if err != nil {
		return Result{}, err
	}
	var (
		batchID *id.ID
		expiry  *time.Time
	)
	if b != nil {
		batchID = id.Ptr(b.ID)
		expiry = b.ExpiryDate
	}

	entry, err := e.ledger.PostEntry(ctx, ledger.EntryParams{
		MovementID:          m.ID,
		Leg:                 ledger.LegPrimary,
		Key:                 src,
		PostingDate:         m.PostingDate,
		VoucherType:         m.VoucherType(),
		VoucherNo:           m.Voucher(),
		Qty:                 m.SignedQuantity(),
		ValuationRate:       rate,
		QtyAfterTransaction: next.Quantity,
		BalanceRate:         next.UnitCost,
		SerialNo:            m.SerialNo,
		BatchID:             batchID,
		BatchNo:             m.BatchNo,
		ExpiryDate:          expiry,
		Remarks:             m.Reason,
		Reference:           m.Reference,
		CreatedBy:           m.CreatedBy,
	})
	if err != nil {
		return Result{}, err
	}
	if err := e.levels.Save(ctx, next); err != nil {
		return Result{}, fmt.Errorf("save stock level %s: %w", src, err)
	}

	res := Result{
		MovementID: m.ID,
		Status:     movement.StatusPosted,
		Entry:      entry,
		Level:      next.ToView(),
	}
	evts := []events.Event{entry.CreatedEvent(), levelEvt}

	if dst != nil {
		tl, err := e.levels.GetForUpdate(ctx, *dst)
		if err != nil {
			return Result{}, fmt.Errorf("load stock level %s: %w", dst, err)
		}
		avg := valuation.IncomingRate(tl.Quantity, tl.UnitCost, m.Quantity, rate)
		tnext, tEvt, err := tl.ReceiveStock(m.Quantity, avg, now)
		if err != nil {
			return Result{}, err
		}
		counterpart, err := e.ledger.PostEntry(ctx, ledger.EntryParams{
			MovementID:          m.ID,
			Leg:                 ledger.LegCounterpart,
			Key:                 *dst,
			PostingDate:         m.PostingDate,
			VoucherType:         m.VoucherType(),
			VoucherNo:           m.Voucher(),
			Qty:                 m.Quantity,
			ValuationRate:       rate,
			QtyAfterTransaction: tnext.Quantity,
			BalanceRate:         tnext.UnitCost,
			SerialNo:            m.SerialNo,
			BatchID:             batchID,
			BatchNo:             m.BatchNo,
			ExpiryDate:          expiry,
			Remarks:             m.Reason,
			Reference:           m.Reference,
			CreatedBy:           m.CreatedBy,
		})
		if err != nil {
			return Result{}, err
		}
		if err := e.levels.Save(ctx, tnext); err != nil {
			return Result{}, fmt.Errorf("save stock level %s: %w", dst, err)
		}
		tv := tnext.ToView()
		res.Counterpart = &counterpart
		res.TargetLevel = &tv
		evts = append(evts, counterpart.CreatedEvent(), tEvt)
	}

	if b != nil {
		if err := e.batches.Save(ctx, *b); err != nil {
			return Result{}, fmt.Errorf("save batch %s: %w", b.BatchNo, err)
		}
		bv := b.ToView(now)
		res.Batch = &bv
		evts = append(evts, batchEvt)
	}

	if err := e.publisher.Publish(ctx, evts); err != nil {
		return Result{}, fmt.Errorf("publish events: %w", err)
	}
	res.Events = evts
	return res, nil
}

// applyBatch returns the next batch snapshot, or nil when m carries no batch.
// An unknown batch is created by incoming movements and rejected otherwise.
func (e *Engine) applyBatch(ctx context.Context, m movement.StockMovement, et movement.StockEntryType, now time.Time) (*batch.Batch, events.Event, error) {
	if m.BatchNo == "" {
		return nil, nil, nil
	}

	b, err := e.batches.GetByNo(ctx, m.ItemCode, m.BatchNo)
	switch {
	case apperror.IsNotFound(err):
		if !m.IsIncoming() {
			return nil, nil, apperror.NewInvalidMovement("unknown batch").
				WithDetail("item", m.ItemCode).
				WithDetail("batch_no", m.BatchNo)
		}
		var attrs batch.Attributes
		if m.BatchAttributes != nil {
			attrs = *m.BatchAttributes
		}
		created, evt, err := batch.Create(m.ItemCode, m.BatchNo, m.Quantity, attrs, now)
		if err != nil {
			return nil, nil, err
		}
		return &created, evt, nil
	case err != nil:
		return nil, nil, fmt.Errorf("load batch %s: %w", m.BatchNo, err)
	}

	var counter batch.Counter
	switch {
	case m.Type == movement.TypeReturn:
		counter = batch.CounterReturned
	case m.IsIncoming():
		counter = batch.CounterReceived
	case m.Type == movement.TypeTransfer:
		counter = batch.CounterTransfer
	default:
		if m.Type == movement.TypeIssue && b.IsExpired(now) {
			return nil, nil, apperror.NewInvalidMovement("batch has expired").
				WithDetail("batch_no", b.BatchNo).
				WithDetail("expiry_date", b.ExpiryDate)
		}
		counter = et.OutgoingCounter()
	}

	next, evt, err := b.Add(counter, m.Quantity, now)
	if err != nil {
		return nil, nil, err
	}
	return &next, evt, nil
}

// entryType loads the configuration governing t.
func (e *Engine) entryType(ctx context.Context, t movement.Type) (movement.StockEntryType, error) {
	et, err := e.entryTypes.Get(ctx, t)
	if err != nil {
		if apperror.IsNotFound(err) {
			return movement.StockEntryType{}, apperror.NewInvalidMovement("no entry type configured for movement type").
				WithDetail("type", string(t))
		}
		return movement.StockEntryType{}, fmt.Errorf("load entry type %s: %w", t, err)
	}
	return et, nil
}

func (e *Engine) checkCatalog(ctx context.Context, m movement.StockMovement) error {
	if e.catalog == nil {
		return nil
	}

	item, err := e.catalog.ResolveItem(ctx, m.ItemCode)
	if err != nil {
		return unknown(err, "item", m.ItemCode)
	}
	switch {
	case !item.IsStockItem:
		return apperror.NewInvalidMovement("item is not a stock item").WithDetail("item", m.ItemCode)
	case item.HasBatchNo && m.BatchNo == "":
		return apperror.NewInvalidMovement("item requires a batch number").WithDetail("item", m.ItemCode)
	case !item.HasBatchNo && m.BatchNo != "":
		return apperror.NewInvalidMovement("item is not batch tracked").WithDetail("item", m.ItemCode)
	}

	if err := e.checkLocation(ctx, m.WarehouseCode, m.BinCode); err != nil {
		return err
	}
	if m.Type == movement.TypeTransfer {
		return e.checkLocation(ctx, m.TargetWarehouseCode, m.TargetBinCode)
	}
	return nil
}

func (e *Engine) checkLocation(ctx context.Context, warehouseCode, binCode string) error {
	wh, err := e.catalog.ResolveWarehouse(ctx, warehouseCode)
	if err != nil {
		return unknown(err, "warehouse", warehouseCode)
	}
	if wh.Disabled {
		return apperror.NewInvalidMovement("warehouse is disabled").WithDetail("warehouse", warehouseCode)
	}
	if binCode == "" {
		return nil
	}
	if _, err := e.catalog.ResolveBin(ctx, warehouseCode, binCode); err != nil {
		return unknown(err, "bin", warehouseCode+"/"+binCode)
	}
	return nil
}

// unknown maps a NotFound lookup to a rejected movement.
func unknown(err error, entity, code string) error {
	if apperror.IsNotFound(err) {
		return apperror.NewInvalidMovement("unknown "+entity).WithDetail(entity, code).WithCause(err)
	}
	return fmt.Errorf("resolve %s %s: %w", entity, code, err)
}

func transferTarget(m movement.StockMovement, et movement.StockEntryType) (stocklevel.Key, error) {
	if !et.AddToTransit {
		return m.TargetKey(), nil
	}
	if et.TransitWarehouse == "" {
		return stocklevel.Key{}, apperror.NewInvalidMovement("entry type sends transfers to transit but names no transit warehouse").
			WithDetail("entry_type", et.Name)
	}
	k := stocklevel.Key{ItemCode: m.ItemCode, WarehouseCode: et.TransitWarehouse}
	if k == m.Key() {
		return stocklevel.Key{}, apperror.NewInvalidMovement("transfer source is the transit warehouse").
			WithDetail("warehouse", et.TransitWarehouse)
	}
	return k, nil
}

// lock acquires keys within the lock timeout.
func (e *Engine) lock(ctx context.Context, keys []string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	unlock, err := e.locker.Lock(lctx, keys...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.NewLockTimeout(keys).WithCause(err)
	}
	return unlock, nil
}

func levelLock(k stocklevel.Key) string { return "level:" + k.String() }

func batchLock(itemCode, batchNo string) string { return "batch:" + itemCode + "/" + batchNo }

// record writes the journal line of a movement request. Duplicates are not
// recorded so the original outcome stays visible.
func (e *Engine) record(ctx context.Context, m movement.StockMovement, res Result, err error) {
	if e.journal == nil || (err != nil && apperror.CodeOf(err) == apperror.CodeAlreadyPosted) {
		return
	}

	rec := movement.JournalRecord{Movement: m, Status: movement.StatusPosted, RecordedAt: e.now()}
	if err != nil {
		rec.Status = movement.StatusRejected
		rec.ErrorCode = apperror.CodeOf(err)
		rec.ErrorMessage = err.Error()
		if ae, ok := apperror.AsAppError(err); ok {
			rec.ErrorMessage = ae.Message
		}
	} else {
		rec.EntryID = id.Ptr(res.Entry.ID)
	}

	if jerr := e.journal.Record(ctx, rec); jerr != nil {
		logger.Warn(ctx, "failed to journal movement", "movement_id", m.ID, "error", jerr)
	}
}
