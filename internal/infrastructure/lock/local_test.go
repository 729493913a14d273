package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventory-costing/internal/domain"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker(time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "v1@w1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.held())
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker(50 * time.Millisecond)

	r1, err := l.Lock(context.Background(), "v1@w1")
	require.NoError(t, err)
	defer r1()

	r2, err := l.Lock(context.Background(), "v1@w2")
	require.NoError(t, err)
	r2()
}

func TestLocalLocker_TimeoutIsContention(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	release, err := l.Lock(context.Background(), "v1@w1")
	require.NoError(t, err)
	defer release()

	_, err = l.Lock(context.Background(), "v1@w1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrContention))

	var cerr *domain.ContentionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "v1@w1", cerr.Key)
	assert.GreaterOrEqual(t, cerr.Waited, 20*time.Millisecond)
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker(time.Second)
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker(time.Second)
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Zero(t, l.held())
}
