package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/pkg/logger"
)

// InvalidationFunc handles one NOTIFY payload.
type InvalidationFunc func(ctx context.Context, payload string)

// Listener holds a dedicated connection on LISTEN and dispatches notifications.
type Listener struct {
	pool     *pgxpool.Pool
	handlers map[string][]InvalidationFunc
	retry    time.Duration

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener over pool. Register handlers before Start.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool:     pool,
		handlers: make(map[string][]InvalidationFunc),
		retry:    time.Second,
	}
}

// Handle subscribes fn to channel.
func (l *Listener) Handle(channel string, fn InvalidationFunc) {
	l.handlers[channel] = append(l.handlers[channel], fn)
}

// Start begins listening in the background. It is a no-op when already started.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started || len(l.handlers) == 0 {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop(ctx)
}

// Stop ends the loop and waits for it.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *Listener) listenLoop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "failed to acquire connection for LISTEN", "error", err)
				l.sleep(ctx)
			}
			continue
		}

		if err := l.subscribe(ctx, conn); err != nil {
			logger.Error(ctx, "failed to LISTEN", "error", err)
			conn.Release()
			l.sleep(ctx)
			continue
		}
		// Notifications sent while reconnecting were missed.
		l.dispatchAll(ctx)

		l.wait(ctx, conn)
		conn.Release()
	}
}

func (l *Listener) subscribe(ctx context.Context, conn *pgxpool.Conn) error {
	channels := make([]string, 0, len(l.handlers))
	for ch := range l.handlers {
		channels = append(channels, "LISTEN "+pgx.Identifier{ch}.Sanitize())
	}
	_, err := conn.Exec(ctx, strings.Join(channels, "; "))
	if err == nil {
		logger.Info(ctx, "listening for cache invalidations", "channels", len(channels))
	}
	return err
}

func (l *Listener) wait(ctx context.Context, conn *pgxpool.Conn) {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				logger.Warn(ctx, "LISTEN connection lost", "error", err)
			}
			return
		}
		l.dispatch(ctx, n.Channel, n.Payload)
	}
}

func (l *Listener) dispatchAll(ctx context.Context) {
	for ch := range l.handlers {
		l.dispatch(ctx, ch, "")
	}
}

// dispatch calls handlers inline, recovering their panics.
func (l *Listener) dispatch(ctx context.Context, channel, payload string) {
	for _, fn := range l.handlers[channel] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "invalidation handler panic recovered", "channel", channel, "panic", r)
				}
			}()
			fn(ctx, payload)
		}()
	}
}

func (l *Listener) sleep(ctx context.Context) {
	t := time.NewTimer(l.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
