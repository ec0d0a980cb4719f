// Package numerator hands out voucher numbers from stock_voucher_sequences.
//
// Numbers come from an UPSERT ... RETURNING on a per-series counter. Called
// inside a transaction the counter increment commits or rolls back with it,
// so the strict strategy never leaves gaps.
package numerator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Strategy defines how numbers are allocated.
type Strategy int

const (
	// StrategyStrict increments the counter once per number. Gapless when
	// called inside the caller's transaction.
	StrategyStrict Strategy = iota

	// StrategyCached reserves a range of numbers and serves it from memory.
	// A restart or a rolled back caller leaves gaps.
	StrategyCached
)

// DefaultRangeSize is the cached strategy's reservation size.
const DefaultRangeSize = 50

// Reset periods.
const (
	ResetYear  = "year"
	ResetMonth = "month"
	ResetNever = "never"
)

// Querier is the single pgx method the numerator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier for a call, typically the transaction in ctx.
type QuerierFunc func(ctx context.Context) Querier

// Config describes one numbering series.
type Config struct {
	// Prefix starts every number (e.g. "REC").
	Prefix string
	// IncludeYear adds the period year after the prefix.
	IncludeYear bool
	// PadWidth is the minimum digit count (default 5).
	PadWidth int
	// ResetPeriod is ResetYear, ResetMonth or ResetNever.
	ResetPeriod string
}

// DefaultConfig numbers PREFIX-YYYY-NNNNN, restarting every year.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: ResetYear,
	}
}

type cachedRange struct {
	current int64
	max     int64
}

// Service allocates numbers. It is safe for concurrent use.
type Service struct {
	querier   QuerierFunc
	strategy  Strategy
	rangeSize int64
	series    map[string]Config

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// Option configures a Service.
type Option func(*Service)

// WithStrategy selects the allocation strategy.
func WithStrategy(s Strategy) Option { return func(svc *Service) { svc.strategy = s } }

// WithRangeSize sets how many numbers the cached strategy reserves at once.
func WithRangeSize(n int64) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.rangeSize = n
		}
	}
}

// WithSeries registers the config used by Next for a series name.
func WithSeries(name string, cfg Config) Option {
	return func(svc *Service) { svc.series[name] = cfg }
}

// New creates a service over a fixed querier.
func New(q Querier, opts ...Option) *Service {
	return NewFromContext(func(context.Context) Querier { return q }, opts...)
}

// NewFromContext creates a service that resolves its querier per call.
func NewFromContext(get QuerierFunc, opts ...Option) *Service {
	s := &Service{
		querier:   get,
		strategy:  StrategyStrict,
		rangeSize: DefaultRangeSize,
		series:    make(map[string]Config),
		ranges:    make(map[string]*cachedRange),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next number of a series. Unregistered series use
// DefaultConfig with the series name as prefix.
func (s *Service) Next(ctx context.Context, series string, at time.Time) (string, error) {
	if s == nil {
		return "", errors.New("numerator service is not initialized")
	}
	cfg, ok := s.series[series]
	if !ok {
		cfg = DefaultConfig(series)
	}
	return s.GetNextNumber(ctx, cfg, at)
}

// GetNextNumber formats the next number for cfg in the period containing at.
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, at time.Time) (string, error) {
	if s == nil {
		return "", errors.New("numerator service is not initialized")
	}
	if cfg.Prefix == "" {
		return "", errors.New("numerator: empty prefix")
	}

	key := buildKey(cfg, at)
	var (
		num int64
		err error
	)
	switch s.strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key)
	default:
		num, err = s.nextStrict(ctx, key)
	}
	if err != nil {
		return "", err
	}
	return formatNumber(cfg, at, num), nil
}

func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO stock_voucher_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = stock_voucher_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", key, err)
	}
	return num, nil
}

func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		// current_val is the last number handed out; the reserved range is (old, new].
		var newMax int64
		err := s.querier(ctx).QueryRow(ctx, `
			INSERT INTO stock_voucher_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = stock_voucher_sequences.current_val + $2
			RETURNING current_val
		`, key, s.rangeSize).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range %s: %w", key, err)
		}
		rng.current = newMax - s.rangeSize
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNextNumber moves a series counter, e.g. when migrating from another system.
// The next number handed out is value+1.
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, at time.Time, value int64) error {
	key := buildKey(cfg, at)

	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO stock_voucher_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func buildKey(cfg Config, at time.Time) string {
	switch cfg.ResetPeriod {
	case ResetMonth:
		return fmt.Sprintf("%s_%s", cfg.Prefix, at.Format("2006_01"))
	case ResetYear:
		return fmt.Sprintf("%s_%s", cfg.Prefix, at.Format("2006"))
	default:
		return cfg.Prefix
	}
}

func formatNumber(cfg Config, at time.Time, num int64) string {
	pad := cfg.PadWidth
	if pad == 0 {
		pad = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, at.Format("2006"), pad, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, pad, num)
}

// ParseNumber extracts the counter from a formatted number, -1 if it has none.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
