package posting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "b", "a")
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(tctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent

	unlock, err = l.Lock(ctx, "a")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, l.held())
}

func TestLocalLocker_OverlappingSetsDoNotDeadlock(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		keys := []string{"x", "y"}
		if i%2 == 1 {
			keys = []string{"y", "x", "x"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, keys...)
			if !assert.NoError(t, err) {
				return
			}
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, l.held())
}
