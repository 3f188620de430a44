// Package indexer builds a ConcurrentIndex from text files on disk, one work
// queue task per file.
package indexer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/finder"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/workqueue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/tracing"
)

// BuildStats summarises one BuildFromPath run.
type BuildStats struct {
	Files     int
	Failed    int
	Positions int64
	Duration  time.Duration
}

// Builder tokenizes files and inserts their stems into a shared index.
type Builder struct {
	index   *index.ConcurrentIndex
	queue   *workqueue.Queue
	tok     *tokenizer.Tokenizer
	batch   bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBatchMerge makes each file build a private index that is merged into
// the shared one under a single write acquisition.
func WithBatchMerge(enabled bool) BuilderOption {
	return func(b *Builder) {
		b.batch = enabled
	}
}

// WithBuilderMetrics counts indexed and failed documents on m.
func WithBuilderMetrics(m *metrics.Metrics) BuilderOption {
	return func(b *Builder) {
		b.metrics = m
	}
}

func NewBuilder(idx *index.ConcurrentIndex, queue *workqueue.Queue, tok *tokenizer.Tokenizer, opts ...BuilderOption) *Builder {
	b := &Builder{
		index:  idx,
		queue:  queue,
		tok:    tok,
		logger: slog.Default().With("component", "builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFromPath indexes every text file under root and waits for all of
// them. Files that fail are logged and counted; they do not stop the run.
func (b *Builder) BuildFromPath(ctx context.Context, root string) (BuildStats, error) {
	ctx, span := tracing.StartChildSpan(ctx, "build")
	defer span.End()
	start := time.Now()

	files, err := finder.List(root)
	if err != nil {
		return BuildStats{}, err
	}
	span.SetAttr("files", len(files))

	var failed atomic.Int32
	var positions atomic.Int64
	for _, path := range files {
		b.queue.Submit(func(context.Context) error {
			n, err := b.addFile(ctx, path)
			positions.Add(int64(n))
			if err != nil {
				failed.Add(1)
				b.record("error")
				return err
			}
			b.record("ok")
			return nil
		})
	}
	if err := b.queue.AwaitCompletion(ctx); err != nil {
		return BuildStats{}, fmt.Errorf("building index from %s: %w", root, err)
	}

	stats := BuildStats{
		Files:     len(files),
		Failed:    int(failed.Load()),
		Positions: positions.Load(),
		Duration:  time.Since(start),
	}
	b.logger.Info("index built",
		"root", root,
		"files", stats.Files,
		"failed", stats.Failed,
		"positions", stats.Positions,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// AddFile indexes a single file inline, on the calling goroutine.
func (b *Builder) AddFile(ctx context.Context, path string) error {
	_, err := b.addFile(ctx, path)
	return err
}

func (b *Builder) record(status string) {
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.WithLabelValues(status).Inc()
	}
}

// addFile returns the number of positions that reached the shared index.
func (b *Builder) addFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, apperrors.IOFailure("opening "+path, err)
	}
	defer f.Close()

	if b.batch {
		local := index.NewInvertedIndex()
		if err := b.scan(f, path, func(term string, pos int) error {
			local.Add(term, pos, path)
			return nil
		}); err != nil {
			return 0, err
		}
		return b.index.AddAll(ctx, local)
	}

	added := 0
	err = b.scan(f, path, func(term string, pos int) error {
		fresh, err := b.index.Add(ctx, term, pos, path)
		if err != nil {
			return err
		}
		if fresh {
			added++
		}
		return nil
	})
	return added, err
}

// scan feeds every stem in r to emit with its position in the whole file,
// counting from 1 across line boundaries.
func (b *Builder) scan(r io.Reader, path string, emit func(term string, pos int) error) error {
	br := bufio.NewReader(r)
	offset := 0
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			tokens := b.tok.Tokenize(line)
			for _, t := range tokens {
				if err := emit(t.Term, offset+t.Position); err != nil {
					return err
				}
			}
			offset += len(tokens)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return apperrors.IOFailure("reading "+path, err)
		}
	}
}
