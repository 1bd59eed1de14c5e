package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moledger/internal/models"
)

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	g := New()
	release, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrLockTimeout))
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New()
	release, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	release()
	release()

	release2, err := g.Acquire(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestDoReleasesOnError(t *testing.T) {
	g := New()
	boom := errors.New("boom")
	err := g.Do(context.Background(), time.Second, func() error { return boom })
	assert.Equal(t, boom, err)

	err = g.Do(context.Background(), 20*time.Millisecond, func() error { return nil })
	assert.NoError(t, err)
}

func TestDoSerializesCallers(t *testing.T) {
	g := New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), 5*time.Second, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}
