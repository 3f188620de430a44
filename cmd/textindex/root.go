package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/serializer"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/workqueue"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/tracing"
)

type options struct {
	configPath string
	logLevel   string
	path       string
	index      string
	counts     string
	query      string
	results    string
	exact      bool
	threads    int
	batch      bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "textindex",
		Short: "Build an inverted index of text files and search it",
		Long: `textindex reads every .txt and .text file under --path, builds an
inverted index of stemmed words with a pool of worker goroutines, and
optionally writes the index, per-file word counts and ranked search
results for a file of queries as JSON.

Output flags take an optional value; given bare they write to the
configured default path. Long flags may be written with one dash.`,
		Example: `  textindex --path docs --index --counts
  textindex --path docs --query queries.txt --results out.json --threads 8
  textindex -path docs -index idx.json
  textindex --path docs --query queries.txt --exact --results`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags(), opts)
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperrors.New(apperrors.ErrInvalidInput, err.Error())
	})

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&opts.path, "path", "", "text file or directory to index")
	f.StringVar(&opts.index, "index", "", "write the inverted index as JSON")
	f.StringVar(&opts.counts, "counts", "", "write per-file word counts as JSON")
	f.StringVar(&opts.query, "query", "", "file with one query per line")
	f.StringVar(&opts.results, "results", "", "write search results as JSON")
	f.BoolVar(&opts.exact, "exact", false, "match whole stems only instead of prefixes")
	f.IntVar(&opts.threads, "threads", 0, "number of worker goroutines")
	f.BoolVar(&opts.batch, "batch-merge", false, "merge each file into the index under one lock acquisition")

	f.Lookup("index").NoOptDefVal = defaultIndexPath
	f.Lookup("counts").NoOptDefVal = defaultCountsPath
	f.Lookup("results").NoOptDefVal = defaultResultsPath
	f.Lookup("threads").NoOptDefVal = "5"

	return cmd
}

// runCLI executes a fresh root command with args.
func runCLI(ctx context.Context, args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(bindOptionalValues(args, cmd.Flags()))
	return cmd.ExecuteContext(ctx)
}

// bindOptionalValues rewrites args so pflag sees "--name=value" wherever a
// flag with an optional value is followed by a separate value, and "--name"
// wherever a long flag is written with a single dash. The command takes no
// positional arguments, so a bare word after such a flag can only be its
// value. Everything after "--" is left alone.
func bindOptionalValues(args []string, flags *pflag.FlagSet) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			name, _, _ := strings.Cut(arg[1:], "=")
			if flags.Lookup(name) != nil {
				arg = "-" + arg
			}
		}
		if !strings.HasPrefix(arg, "--") || strings.Contains(arg, "=") {
			out = append(out, arg)
			continue
		}
		f := flags.Lookup(arg[2:])
		if f != nil && f.NoOptDefVal != "" && i+1 < len(args) && acceptsValue(f, args[i+1]) {
			out = append(out, arg+"="+args[i+1])
			i++
			continue
		}
		out = append(out, arg)
	}
	return out
}

func acceptsValue(f *pflag.Flag, next string) bool {
	if f.Value.Type() == "int" {
		_, err := strconv.Atoi(next)
		return err == nil
	}
	return next != "" && !strings.HasPrefix(next, "-")
}

const (
	defaultIndexPath   = "index.json"
	defaultCountsPath  = "counts.json"
	defaultResultsPath = "results.json"
)

// resolve merges flags into cfg. A bare output flag yields the configured
// default path.
func resolve(flags *pflag.FlagSet, opts options, cfg *config.Config) options {
	output := func(name, value, configured string) string {
		if !flags.Changed(name) {
			return ""
		}
		if value == flags.Lookup(name).NoOptDefVal {
			return configured
		}
		return value
	}
	opts.index = output("index", opts.index, cfg.Output.Index)
	opts.counts = output("counts", opts.counts, cfg.Output.Counts)
	opts.results = output("results", opts.results, cfg.Output.Results)

	if flags.Changed("threads") {
		cfg.Index.Threads = opts.threads
	}
	if cfg.Index.Threads < 1 {
		cfg.Index.Threads = workqueue.DefaultSize
	}
	if flags.Changed("exact") {
		cfg.Search.Exact = opts.exact
	}
	if flags.Changed("batch-merge") {
		cfg.Index.BatchMerge = opts.batch
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return opts
}

func run(ctx context.Context, flags *pflag.FlagSet, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts = resolve(flags, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "textindex")
	log.Info("starting", "config", cfg.String())

	var span *tracing.Span
	if cfg.Tracing.Enabled {
		ctx, span = tracing.StartRun(ctx, "run")
		span.SetAttr("run_id", runID)
	}

	m := metrics.New(nil)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, m.Handler(),
			metrics.Route{Path: "/health", Handler: checker.Handler()},
		)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Error("stopping metrics server", "error", err)
			}
		}()
	}

	queue := workqueue.New(cfg.Index.Threads, workqueue.WithMetrics(m), workqueue.WithContext(ctx))
	defer func() {
		queue.Shutdown()
		if err := queue.AwaitTermination(context.Background()); err != nil {
			log.Error("stopping workers", "error", err)
		}
	}()

	idx := index.NewConcurrentIndex(index.WithMetrics(m))
	tok := tokenizer.New(cfg.Index.StemCacheSize)
	checker.Register("workqueue", queueCheck(queue))
	checker.Register("index", indexCheck(idx))

	var failures []error
	if opts.path != "" {
		b := indexer.NewBuilder(idx, queue, tok,
			indexer.WithBatchMerge(cfg.Index.BatchMerge),
			indexer.WithBuilderMetrics(m),
		)
		if _, err := b.BuildFromPath(ctx, opts.path); err != nil {
			log.Error("building index", "path", opts.path, "error", err)
			failures = append(failures, err)
		}
	}

	qopts := []query.Option{query.WithQueue(queue), query.WithMetrics(m)}
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("result cache unavailable, continuing without it", "error", err)
		} else {
			defer client.Close()
			rc := cache.New(client, cfg.Redis)
			checker.Register("result-cache", cacheCheck(rc))
			qopts = append(qopts, query.WithCache(rc))
		}
	}
	qb := query.New(idx, tok, qopts...)
	if opts.query != "" {
		if err := qb.ParseFile(ctx, opts.query, cfg.Search.Exact); err != nil {
			log.Error("evaluating queries", "query", opts.query, "error", err)
			failures = append(failures, err)
		}
	}

	failures = append(failures, writeOutputs(ctx, log, idx, qb, opts)...)

	if span != nil {
		span.End()
		span.Log(log)
	}
	if len(failures) > 0 {
		return apperrors.Join(failures...)
	}
	log.Info("done")
	return nil
}

// writeOutputs writes every requested file concurrently. Each write is
// independent: one failing does not stop the others.
func writeOutputs(ctx context.Context, log *slog.Logger, idx *index.ConcurrentIndex, qb *query.Builder, opts options) []error {
	ctx, span := tracing.StartChildSpan(ctx, "write")
	defer span.End()

	type output struct {
		path  string
		write func(w io.Writer) error
	}
	var outputs []output
	if opts.index != "" {
		outputs = append(outputs, output{opts.index, func(w io.Writer) error { return idx.WriteIndexJSON(ctx, w) }})
	}
	if opts.counts != "" {
		outputs = append(outputs, output{opts.counts, func(w io.Writer) error { return idx.WriteCountsJSON(ctx, w) }})
	}
	if opts.results != "" {
		outputs = append(outputs, output{opts.results, qb.WriteJSON})
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, out := range outputs {
		g.Go(func() error {
			if err := serializer.WriteFile(out.path, out.write); err != nil {
				log.Error("writing output", "path", out.path, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			log.Info("output written", "path", out.path)
			return nil
		})
	}
	_ = g.Wait()
	span.SetAttr("outputs", len(outputs))
	return errs
}
