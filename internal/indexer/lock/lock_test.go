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

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
)

func TestSharedLock_WriterExcludesEveryone(t *testing.T) {
	l := New()
	ctx := context.Background()

	var activeReaders, activeWriters atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				owner, err := l.Write().Lock(ctx)
				if !assert.NoError(t, err) {
					return
				}
				if activeWriters.Add(1) != 1 || activeReaders.Load() != 0 {
					violations.Add(1)
				}
				activeWriters.Add(-1)
				assert.NoError(t, l.Write().Unlock(owner))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if !assert.NoError(t, l.Read().Lock(ctx)) {
					return
				}
				activeReaders.Add(1)
				if activeWriters.Load() != 0 {
					violations.Add(1)
				}
				activeReaders.Add(-1)
				assert.NoError(t, l.Read().Unlock())
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, Stats{}, l.Stats())
}

func TestSharedLock_ReadersShareTheLock(t *testing.T) {
	l := New()
	ctx := context.Background()
	const readers = 10

	var inside sync.WaitGroup
	inside.Add(readers)
	release := make(chan struct{})
	var done sync.WaitGroup
	for i := 0; i < readers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			assert.NoError(t, l.Read().Lock(ctx))
			inside.Done()
			<-release
			assert.NoError(t, l.Read().Unlock())
		}()
	}

	// Every reader must be inside at the same time for this to return.
	inside.Wait()
	assert.Equal(t, Stats{Readers: readers}, l.Stats())
	close(release)
	done.Wait()
	assert.Equal(t, Stats{}, l.Stats())
}

func TestSharedLock_WriterWaitsForLastReader(t *testing.T) {
	l := New()
	ctx := context.Background()
	require.NoError(t, l.Read().Lock(ctx))
	require.NoError(t, l.Read().Lock(ctx))

	acquired := make(chan Owner)
	go func() {
		owner, err := l.Write().Lock(ctx)
		assert.NoError(t, err)
		acquired <- owner
	}()

	require.NoError(t, l.Read().Unlock())
	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader was active")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, l.Read().Unlock())
	select {
	case owner := <-acquired:
		assert.Equal(t, Stats{Writers: 1}, l.Stats())
		require.NoError(t, l.Write().Unlock(owner))
	case <-time.After(time.Second):
		t.Fatal("writer not released after last reader exit")
	}
}

func TestSharedLock_OwnershipViolation(t *testing.T) {
	l := New()
	ctx := context.Background()

	owner, err := l.Write().Lock(ctx)
	require.NoError(t, err)

	err = l.Write().Unlock(owner + 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOwnershipViolation))
	assert.Equal(t, Stats{Writers: 1}, l.Stats(), "failed unlock must not touch the writer count")
	assert.Equal(t, owner, l.Write().Holder())

	require.NoError(t, l.Write().Unlock(owner))

	// A stale identity is rejected after release as well.
	err = l.Write().Unlock(owner)
	assert.ErrorIs(t, err, apperrors.ErrOwnershipViolation)
	assert.Equal(t, Stats{}, l.Stats())

	// The lock is still fully usable.
	next, err := l.Write().Lock(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, owner, next)
	require.NoError(t, l.Write().Unlock(next))
	require.NoError(t, l.Read().Lock(ctx))
	require.NoError(t, l.Read().Unlock())
}

func TestSharedLock_ReleaseFromAnotherGoroutine(t *testing.T) {
	l := New()
	owner, err := l.Write().Lock(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Write().Unlock(0)
	}()
	assert.ErrorIs(t, <-errCh, apperrors.ErrOwnershipViolation)
	assert.Equal(t, Stats{Writers: 1}, l.Stats())
	require.NoError(t, l.Write().Unlock(owner))
}

func TestSharedLock_ReadUnlockWithoutReader(t *testing.T) {
	l := New()
	err := l.Read().Unlock()
	assert.ErrorIs(t, err, apperrors.ErrNotHeld)
	assert.Equal(t, Stats{}, l.Stats())
}

func TestSharedLock_CancelledReadWait(t *testing.T) {
	l := New()
	owner, err := l.Write().Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Read().Lock(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, apperrors.ErrInterruptedWait)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled reader still blocked")
	}
	assert.Equal(t, Stats{Writers: 1}, l.Stats(), "abandoned wait must not register a reader")
	require.NoError(t, l.Write().Unlock(owner))
}

func TestSharedLock_CancelledWriteWait(t *testing.T) {
	l := New()
	require.NoError(t, l.Read().Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err := l.Write().Lock(ctx)
	assert.ErrorIs(t, err, apperrors.ErrInterruptedWait)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Stats{Readers: 1}, l.Stats())
	assert.Zero(t, l.Write().Holder())

	require.NoError(t, l.Read().Unlock())
	owner, err := l.Write().Lock(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Write().Unlock(owner))
}

func TestSharedLock_AlreadyCancelledContextWithFreeLock(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No wait is needed, so acquisition succeeds.
	require.NoError(t, l.Read().Lock(ctx))
	require.NoError(t, l.Read().Unlock())
}

func TestSharedLock_WaitObserver(t *testing.T) {
	var mu sync.Mutex
	seen := map[Mode]int{}
	l := New(WithWaitObserver(func(mode Mode, _ time.Duration) {
		mu.Lock()
		seen[mode]++
		mu.Unlock()
	}))
	ctx := context.Background()

	require.NoError(t, l.Read().Lock(ctx))
	require.NoError(t, l.Read().Unlock())
	owner, err := l.Write().Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Write().Unlock(owner))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[Mode]int{ModeRead: 1, ModeWrite: 1}, seen)
}
