package numerator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	val int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.val
	return nil
}

// fakeSequences mimics stock_voucher_sequences by recognising the three statements.
type fakeSequences struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
	err   error
}

func newFakeSequences() *fakeSequences { return &fakeSequences{vals: map[string]int64{}} }

func (f *fakeSequences) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return fakeRow{err: f.err}
	}

	key := args[0].(string)
	switch {
	case len(args) == 1:
		f.vals[key]++
	case strings.Contains(sql, "current_val + $2"):
		f.vals[key] += args[1].(int64)
	default:
		f.vals[key] = args[1].(int64)
	}
	return fakeRow{val: f.vals[key]}
}

var at = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func TestNext_Strict(t *testing.T) {
	db := newFakeSequences()
	svc := New(db)
	ctx := context.Background()

	first, err := svc.Next(ctx, "REC", at)
	require.NoError(t, err)
	second, err := svc.Next(ctx, "REC", at)
	require.NoError(t, err)
	other, err := svc.Next(ctx, "ISS", at)
	require.NoError(t, err)

	assert.Equal(t, "REC-2026-00001", first)
	assert.Equal(t, "REC-2026-00002", second)
	assert.Equal(t, "ISS-2026-00001", other)
	assert.Equal(t, 3, db.calls)
}

func TestNext_YearlyReset(t *testing.T) {
	svc := New(newFakeSequences())
	ctx := context.Background()

	_, err := svc.Next(ctx, "REC", at)
	require.NoError(t, err)
	got, err := svc.Next(ctx, "REC", at.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "REC-2027-00001", got)
}

func TestNext_RegisteredSeries(t *testing.T) {
	svc := New(newFakeSequences(), WithSeries("Transfer", Config{Prefix: "TRF", PadWidth: 3, ResetPeriod: ResetNever}))

	got, err := svc.Next(context.Background(), "Transfer", at)
	require.NoError(t, err)
	assert.Equal(t, "TRF-001", got)
}

func TestNext_Cached(t *testing.T) {
	db := newFakeSequences()
	svc := New(db, WithStrategy(StrategyCached), WithRangeSize(10))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		got, err := svc.Next(ctx, "ORD", at)
		require.NoError(t, err)
		assert.Equal(t, int64(i), ParseNumber(got))
	}
	assert.Equal(t, 1, db.calls, "one reservation serves the whole range")

	got, err := svc.Next(ctx, "ORD", at)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-00011", got)
	assert.Equal(t, 2, db.calls)
	assert.Equal(t, int64(20), db.vals["ORD_2026"])
}

func TestSetNextNumber_DropsCachedRange(t *testing.T) {
	db := newFakeSequences()
	svc := New(db, WithStrategy(StrategyCached), WithRangeSize(10))
	ctx := context.Background()
	cfg := DefaultConfig("INV")

	_, err := svc.GetNextNumber(ctx, cfg, at)
	require.NoError(t, err)
	require.NoError(t, svc.SetNextNumber(ctx, cfg, at, 100))

	got, err := svc.GetNextNumber(ctx, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00101", got)
}

func TestNext_Errors(t *testing.T) {
	db := newFakeSequences()
	db.err = errors.New("connection reset")
	svc := New(db)

	_, err := svc.Next(context.Background(), "REC", at)
	require.ErrorIs(t, err, db.err)

	_, err = svc.GetNextNumber(context.Background(), Config{}, at)
	require.Error(t, err)

	var nilSvc *Service
	_, err = nilSvc.Next(context.Background(), "REC", at)
	require.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	tests := map[string]int64{
		"REC-2026-00042": 42,
		"TRF-007":        7,
		"nonumber":       -1,
		"REC-abc":        -1,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseNumber(in), in)
	}
}
