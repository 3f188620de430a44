// Package lock provides a multi-reader/single-writer lock whose read and
// write handles share one mutex and one condition variable. Many readers may
// hold the read side at once; the write side excludes everyone else. Waits are
// cancellable through a context and never leave a counter incremented when
// the wait is abandoned.
package lock

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
)

// Mode identifies which side of the lock an operation concerns.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Owner identifies one successful write acquisition. It must be handed back
// to WriteLock.Unlock; any other value is reported as an ownership violation.
type Owner uint64

// Stats is a point-in-time view of the lock counters.
type Stats struct {
	Readers int
	Writers int
}

// WaitObserver receives the time spent blocked for every acquisition,
// including abandoned ones.
type WaitObserver func(mode Mode, waited time.Duration)

// SharedLock holds the state shared by its read and write handles.
type SharedLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writers int
	owner   Owner
	next    Owner
	observe WaitObserver

	read  ReadLock
	write WriteLock
}

// Option configures a SharedLock.
type Option func(*SharedLock)

// WithWaitObserver installs a callback invoked after each acquisition attempt.
func WithWaitObserver(fn WaitObserver) Option {
	return func(l *SharedLock) {
		l.observe = fn
	}
}

// New creates an unlocked SharedLock.
func New(opts ...Option) *SharedLock {
	l := &SharedLock{}
	l.cond = sync.NewCond(&l.mu)
	l.read.shared = l
	l.write.shared = l
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Read returns the read handle.
func (l *SharedLock) Read() *ReadLock {
	return &l.read
}

// Write returns the write handle.
func (l *SharedLock) Write() *WriteLock {
	return &l.write
}

// Stats returns the current reader and writer counts.
func (l *SharedLock) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Readers: l.readers, Writers: l.writers}
}

// wait blocks on the condition until blocked() is false or ctx is done.
// The caller holds l.mu.
func (l *SharedLock) wait(ctx context.Context, blocked func() bool) error {
	if !blocked() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		})
		defer stop()
	}
	for blocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	return nil
}

func (l *SharedLock) observed(mode Mode, start time.Time) {
	if l.observe != nil {
		l.observe(mode, time.Since(start))
	}
}

// ReadLock is the shared side of a SharedLock.
type ReadLock struct {
	shared *SharedLock
}

// Lock waits until no writer holds the lock, then registers a reader.
func (r *ReadLock) Lock(ctx context.Context) error {
	l := r.shared
	start := time.Now()
	defer l.observed(ModeRead, start)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.wait(ctx, func() bool { return l.writers > 0 }); err != nil {
		return apperrors.Interrupted("acquiring read lock", err)
	}
	l.readers++
	return nil
}

// Unlock deregisters a reader and wakes all waiters once the last one leaves.
func (r *ReadLock) Unlock() error {
	l := r.shared
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readers == 0 {
		return apperrors.New(apperrors.ErrNotHeld, "read unlock without a reader")
	}
	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
	return nil
}

// WriteLock is the exclusive side of a SharedLock.
type WriteLock struct {
	shared *SharedLock
}

// Lock waits until there are no readers and no writer, then takes the
// write side and returns the identity that must be passed to Unlock.
func (w *WriteLock) Lock(ctx context.Context) (Owner, error) {
	l := w.shared
	start := time.Now()
	defer l.observed(ModeWrite, start)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.wait(ctx, func() bool { return l.readers > 0 || l.writers > 0 }); err != nil {
		return 0, apperrors.Interrupted("acquiring write lock", err)
	}
	l.writers++
	l.next++
	l.owner = l.next
	return l.owner, nil
}

// Unlock releases the write side. A caller presenting an identity other than
// the current holder's gets ErrOwnershipViolation and the state is untouched.
func (w *WriteLock) Unlock(owner Owner) error {
	l := w.shared
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writers == 0 {
		return apperrors.Newf(apperrors.ErrOwnershipViolation, "write unlock by %d while unlocked", owner)
	}
	if owner != l.owner {
		return apperrors.Newf(apperrors.ErrOwnershipViolation, "write unlock by %d, held by %d", owner, l.owner)
	}
	l.writers--
	l.owner = 0
	l.cond.Broadcast()
	return nil
}

// Holder reports the identity currently holding the write side, or zero.
func (w *WriteLock) Holder() Owner {
	l := w.shared
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}
