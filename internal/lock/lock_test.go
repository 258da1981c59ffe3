package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "tx-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	exerciseMutualExclusion(t, l)
	assert.Equal(t, 0, l.held())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()

	releaseA, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()

	release, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Equal(t, 0, l.held())
}

// Requires a running Redis at REDIS_URL.
func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Redis not configured")
	}

	client, err := NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	exerciseMutualExclusion(t, NewRedisLocker(client, 5*time.Second))
}
