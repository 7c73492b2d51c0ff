package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-matching/internal/application/port"
)

func TestMemoryLocker_SerialisesSameKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "m-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.held())
}

func TestMemoryLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, "m-1")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Acquire(ctx, "m-2")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestMemoryLocker_ContextTimeout(t *testing.T) {
	l := NewMemoryLocker()

	release, err := l.Acquire(context.Background(), "m-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "m-1")
	assert.ErrorIs(t, err, port.ErrLockTimeout)

	release()
	release() // second call is a no-op
	assert.Zero(t, l.held())

	again, err := l.Acquire(context.Background(), "m-1")
	require.NoError(t, err)
	again()
}

func TestWithTimeout(t *testing.T) {
	base := NewMemoryLocker()
	assert.Same(t, base, WithTimeout(base, 0))

	l := WithTimeout(base, 20*time.Millisecond)
	release, err := l.Acquire(context.Background(), "m-1")
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Acquire(context.Background(), "m-1")
	assert.ErrorIs(t, err, port.ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	release()
	release2, err := l.Acquire(context.Background(), "m-1")
	require.NoError(t, err)
	release2()
	assert.Zero(t, base.held())
}
