package index

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/lock"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/serializer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
)

// ConcurrentIndex guards an InvertedIndex with a SharedLock: mutators take
// the write side, accessors the read side. Accessors return copies, never
// references into the index.
type ConcurrentIndex struct {
	index   *InvertedIndex
	lock    *lock.SharedLock
	metrics *metrics.Metrics
	logger  *slog.Logger

	fpMu      sync.Mutex
	fp        string
	fpVersion uint64
}

// ConcurrentOption configures a ConcurrentIndex.
type ConcurrentOption func(*ConcurrentIndex)

// WithMetrics records lock waits and insertions on m.
func WithMetrics(m *metrics.Metrics) ConcurrentOption {
	return func(c *ConcurrentIndex) {
		c.metrics = m
	}
}

func NewConcurrentIndex(opts ...ConcurrentOption) *ConcurrentIndex {
	c := &ConcurrentIndex{
		index:  NewInvertedIndex(),
		logger: slog.Default().With("component", "concurrent-index"),
	}
	for _, opt := range opts {
		opt(c)
	}
	var lockOpts []lock.Option
	if c.metrics != nil {
		m := c.metrics
		lockOpts = append(lockOpts, lock.WithWaitObserver(func(mode lock.Mode, waited time.Duration) {
			m.LockWaitSeconds.WithLabelValues(string(mode)).Observe(waited.Seconds())
		}))
	}
	c.lock = lock.New(lockOpts...)
	return c
}

// LockStats exposes the lock counters for diagnostics.
func (c *ConcurrentIndex) LockStats() lock.Stats {
	return c.lock.Stats()
}

func (c *ConcurrentIndex) read(ctx context.Context, fn func(ix *InvertedIndex) error) error {
	if err := c.lock.Read().Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.lock.Read().Unlock(); err != nil {
			c.logger.Error("releasing read lock", "error", err)
		}
	}()
	return fn(c.index)
}

func (c *ConcurrentIndex) write(ctx context.Context, fn func(ix *InvertedIndex) error) error {
	owner, err := c.lock.Write().Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.lock.Write().Unlock(owner); err != nil {
			c.logger.Error("releasing write lock", "error", err)
		}
	}()
	return fn(c.index)
}

func readValue[T any](ctx context.Context, c *ConcurrentIndex, fn func(ix *InvertedIndex) T) (T, error) {
	var out T
	err := c.read(ctx, func(ix *InvertedIndex) error {
		out = fn(ix)
		return nil
	})
	return out, err
}

// Add records term at position in doc and reports whether the position was
// new. The arguments are checked before the lock is taken, so a rejected call
// leaves the index untouched.
func (c *ConcurrentIndex) Add(ctx context.Context, term string, position int, doc string) (bool, error) {
	if term == "" || doc == "" || position < 1 {
		return false, apperrors.Newf(apperrors.ErrInvalidInput, "add %q at %d in %q", term, position, doc)
	}
	var added bool
	err := c.write(ctx, func(ix *InvertedIndex) error {
		added = ix.Add(term, position, doc)
		if added && c.metrics != nil {
			c.metrics.PositionsAddedTotal.Inc()
		}
		return nil
	})
	return added, err
}

// AddAll merges a locally built index under a single write acquisition and
// returns the number of new positions.
func (c *ConcurrentIndex) AddAll(ctx context.Context, local *InvertedIndex) (int, error) {
	var added int
	err := c.write(ctx, func(ix *InvertedIndex) error {
		added = ix.AddAll(local)
		return nil
	})
	if err == nil && c.metrics != nil {
		c.metrics.PositionsAddedTotal.Add(float64(added))
	}
	return added, err
}

func (c *ConcurrentIndex) Contains(ctx context.Context, term string) (bool, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) bool { return ix.Contains(term) })
}

func (c *ConcurrentIndex) ContainsDocument(ctx context.Context, term, doc string) (bool, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) bool { return ix.ContainsDocument(term, doc) })
}

func (c *ConcurrentIndex) ContainsPosition(ctx context.Context, term, doc string, position int) (bool, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) bool { return ix.ContainsPosition(term, doc, position) })
}

func (c *ConcurrentIndex) Positions(ctx context.Context, term, doc string) ([]int, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) []int { return ix.Positions(term, doc) })
}

func (c *ConcurrentIndex) Documents(ctx context.Context, term string) ([]string, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) []string { return ix.Documents(term) })
}

func (c *ConcurrentIndex) Terms(ctx context.Context) ([]string, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) []string { return ix.Terms() })
}

func (c *ConcurrentIndex) Files(ctx context.Context) ([]string, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) []string { return ix.Files() })
}

func (c *ConcurrentIndex) Count(ctx context.Context, doc string) (int, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) int { return ix.Count(doc) })
}

func (c *ConcurrentIndex) NumTerms(ctx context.Context) (int, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) int { return ix.NumTerms() })
}

func (c *ConcurrentIndex) NumDocuments(ctx context.Context, term string) (int, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) int { return ix.NumDocuments(term) })
}

// Fingerprint returns InvertedIndex.Fingerprint, recomputed only after the
// index has changed.
func (c *ConcurrentIndex) Fingerprint(ctx context.Context) (string, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) string {
		c.fpMu.Lock()
		defer c.fpMu.Unlock()
		if c.fp == "" || c.fpVersion != ix.Version() {
			c.fp = ix.Fingerprint()
			c.fpVersion = ix.Version()
		}
		return c.fp
	})
}

// Search evaluates queries under the read side of the lock.
func (c *ConcurrentIndex) Search(ctx context.Context, queries []string, exact bool) ([]QueryResult, error) {
	return readValue(ctx, c, func(ix *InvertedIndex) []QueryResult { return ix.Search(queries, exact) })
}

// WriteIndexJSON writes the whole index as pretty JSON. The read side is
// held for the duration of the write so the output is a consistent snapshot.
func (c *ConcurrentIndex) WriteIndexJSON(ctx context.Context, w io.Writer) error {
	return c.read(ctx, func(ix *InvertedIndex) error {
		return serializer.Encode(w, ix.Snapshot())
	})
}

// WriteCountsJSON writes the per-document word counts as pretty JSON.
func (c *ConcurrentIndex) WriteCountsJSON(ctx context.Context, w io.Writer) error {
	return c.read(ctx, func(ix *InvertedIndex) error {
		return serializer.Encode(w, ix.Counts())
	})
}

func (c *ConcurrentIndex) String() string {
	s, err := readValue(context.Background(), c, func(ix *InvertedIndex) string { return ix.String() })
	if err != nil {
		return err.Error()
	}
	return s
}
