// Package query evaluates query files against a ConcurrentIndex. Every line
// becomes a query made of its distinct stems; a query already evaluated in
// the session is not evaluated again.
package query

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/serializer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/workqueue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/tracing"
)

// Builder collects the results of every query it has evaluated.
type Builder struct {
	index   *index.ConcurrentIndex
	tok     *tokenizer.Tokenizer
	queue   *workqueue.Queue
	cache   *cache.ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	group   singleflight.Group
	mu      sync.Mutex
	results map[string][]index.QueryResult
}

type Option func(*Builder)

// WithQueue evaluates the lines of a file as tasks on q instead of inline.
func WithQueue(q *workqueue.Queue) Option {
	return func(b *Builder) {
		b.queue = q
	}
}

// WithCache consults c before evaluating a query and stores what it computes.
func WithCache(c *cache.ResultCache) Option {
	return func(b *Builder) {
		b.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func New(idx *index.ConcurrentIndex, tok *tokenizer.Tokenizer, opts ...Option) *Builder {
	b := &Builder{
		index:   idx,
		tok:     tok,
		results: make(map[string][]index.QueryResult),
		logger:  slog.Default().With("component", "query-builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key returns the canonical form of a query line: its sorted distinct stems
// joined by single spaces. It is empty when the line has no words.
func (b *Builder) Key(line string) string {
	return strings.Join(b.tok.Terms(line), " ")
}

// ParseFile evaluates every line of the file at path.
func (b *Builder) ParseFile(ctx context.Context, path string, exact bool) error {
	ctx, span := tracing.StartChildSpan(ctx, "query")
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		return apperrors.IOFailure("opening query file "+path, err)
	}
	defer f.Close()

	var (
		errMu    sync.Mutex
		firstErr error
	)
	keep := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	lines := 0
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			lines++
			if b.queue != nil {
				b.queue.Submit(func(context.Context) error {
					err := b.ParseLine(ctx, line, exact)
					if err != nil {
						keep(err)
					}
					return err
				})
			} else if err := b.ParseLine(ctx, line, exact); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			keep(apperrors.IOFailure("reading query file "+path, readErr))
			break
		}
	}
	if b.queue != nil {
		if err := b.queue.AwaitCompletion(ctx); err != nil {
			return err
		}
	}
	span.SetAttr("lines", lines)
	return firstErr
}

// ParseLine evaluates one query line unless its key was already evaluated.
// Concurrent calls for the same key share a single evaluation.
func (b *Builder) ParseLine(ctx context.Context, line string, exact bool) error {
	terms := b.tok.Terms(line)
	if len(terms) == 0 {
		return nil
	}
	key := strings.Join(terms, " ")
	if b.seen(key) {
		b.dedup(exact)
		return nil
	}
	_, err, _ := b.group.Do(key, func() (any, error) {
		if b.seen(key) {
			return nil, nil
		}
		results, err := b.evaluate(ctx, key, terms, exact)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.results[key] = results
		b.mu.Unlock()
		return nil, nil
	})
	return err
}

func (b *Builder) dedup(exact bool) {
	if b.metrics != nil {
		b.metrics.SearchQueriesTotal.WithLabelValues(modeName(exact), "dedup").Inc()
	}
}

func modeName(exact bool) string {
	if exact {
		return "exact"
	}
	return "partial"
}

func (b *Builder) seen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.results[key]
	return ok
}

func (b *Builder) evaluate(ctx context.Context, key string, terms []string, exact bool) ([]index.QueryResult, error) {
	mode := modeName(exact)
	start := time.Now()
	status := "disabled"

	var fingerprint string
	if b.cache != nil {
		fp, err := b.index.Fingerprint(ctx)
		if err != nil {
			return nil, err
		}
		fingerprint = fp
		if cached, ok := b.cache.Get(ctx, fingerprint, exact, key); ok {
			b.observe(mode, "hit", start, len(cached))
			return nonNil(cached), nil
		}
		status = "miss"
	}

	results, err := b.index.Search(ctx, terms, exact)
	if err != nil {
		return nil, err
	}
	results = nonNil(results)
	if b.cache != nil {
		b.cache.Set(ctx, fingerprint, exact, key, results)
	}
	b.observe(mode, status, start, len(results))
	b.logger.Debug("query evaluated", "query", key, "mode", mode, "results", len(results))
	return results, nil
}

func (b *Builder) observe(mode, cacheStatus string, start time.Time, n int) {
	if b.metrics == nil {
		return
	}
	b.metrics.SearchQueriesTotal.WithLabelValues(mode, cacheStatus).Inc()
	b.metrics.SearchLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	b.metrics.SearchResultsCount.Observe(float64(n))
}

func nonNil(results []index.QueryResult) []index.QueryResult {
	if results == nil {
		return []index.QueryResult{}
	}
	return results
}

// Results returns a copy of every evaluated query and its ranked results.
func (b *Builder) Results() map[string][]index.QueryResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]index.QueryResult, len(b.results))
	for k, v := range b.results {
		out[k] = append([]index.QueryResult{}, v...)
	}
	return out
}

// WriteJSON writes the results as pretty JSON, queries in sorted order.
func (b *Builder) WriteJSON(w io.Writer) error {
	return serializer.Encode(w, b.Results())
}
