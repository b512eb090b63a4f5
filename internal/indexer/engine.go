// Package indexer builds index generations from a document tree. Build
// produces the primary generation; Update produces the auxiliary generation
// and the tombstone list from what changed since.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/encoding"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tombstone"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/tracing"
)

type Engine struct {
	cfg      config.IndexConfig
	root     string
	store    *segment.Store
	resolver *encoding.Resolver
	detector encoding.Detector
	lister   catalog.Lister
	metrics  *metrics.Metrics
	notifier Notifier
	journal  Journal
	now      func() time.Time
	logger   *slog.Logger

	// mu serialises Build and Update within the process.
	mu sync.Mutex
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithDetector(d encoding.Detector) Option { return func(e *Engine) { e.detector = d } }

func WithLister(l catalog.Lister) Option { return func(e *Engine) { e.lister = l } }

// NewEngine prepares an engine for the tree at root. m may be nil.
func NewEngine(cfg config.IndexConfig, root string, m *metrics.Metrics, opts ...Option) (*Engine, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, root, err)
	}
	if !info.IsDir() {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, root, "not a directory")
	}
	dataDir := cfg.ResolveDataDir(root)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, dataDir, fmt.Errorf("creating data directory: %w", err))
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	e := &Engine{
		cfg:     cfg,
		root:    root,
		store:   segment.NewStore(dataDir),
		lister:  catalog.WalkLister{},
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil {
		e.detector = encoding.NewChardetDetector()
	}
	e.resolver = encoding.NewResolver(e.detector, encoding.Options{
		SampleBytes:            cfg.SampleBytes,
		ReplaceBelowConfidence: cfg.ReplaceBelowConfidence,
		LargeFileConfidence:    cfg.LargeFileConfidence,
	})
	return e, nil
}

func (e *Engine) Store() *segment.Store {
	return e.store
}

func (e *Engine) TombstonePath() string {
	return filepath.Join(e.store.Dir(), tombstone.FileName)
}

// Build indexes the whole tree into the primary generation. The auxiliary
// generation and the tombstone list are cleared once the new primary is
// saved, since it already reflects every change they recorded.
func (e *Engine) Build(ctx context.Context) (*BuildReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.Start(ctx, "build")
	started := e.now()
	log := e.logger.With("run_id", runID)

	report, err := e.build(ctx, runID)
	span.End()
	span.Log(ctx)

	run := journal.Run{
		ID: runID, Kind: journal.KindBuild, Generation: index.Main,
		Status: journal.StatusOK, StartedAt: started, FinishedAt: e.now(),
	}
	if report != nil {
		fillRun(&run, report)
	}
	if err != nil {
		run.Status = journal.StatusFailed
		run.Detail.ErrorMessage = err.Error()
		log.Error("build failed", "error", err)
	}
	e.record(ctx, run)
	if err != nil {
		return nil, err
	}
	report.Duration = e.now().Sub(started)
	e.metrics.BuildDuration.WithLabelValues(index.Main).Observe(report.Duration.Seconds())
	e.notify(ctx, report, nil)
	return report, nil
}

func (e *Engine) build(ctx context.Context, runID string) (*BuildReport, error) {
	ins, err := catalog.LoadInstructions(e.cfg.InstructionsFile)
	if err != nil {
		return nil, fmt.Errorf("loading instructions: %w", err)
	}
	disc, err := e.discover(ctx, ins)
	if err != nil {
		return nil, err
	}
	gen, report, err := e.buildGeneration(ctx, index.Main, disc.Files, ins)
	if err != nil {
		return nil, err
	}
	report.RunID = runID
	report.Excluded = disc.Excluded
	err = e.store.Commit(func() error {
		if err := e.save(ctx, gen); err != nil {
			return err
		}
		if err := e.store.Remove(index.Auxiliary); err != nil {
			return fmt.Errorf("clearing auxiliary generation: %w", err)
		}
		if err := tombstone.Reset(e.TombstonePath()); err != nil {
			return fmt.Errorf("clearing tombstones: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Update rebuilds the auxiliary generation from every document that differs
// from the primary one and appends removed paths to the tombstone list. The
// primary generation is never modified. When nothing changed since the last
// run, nothing is written.
func (e *Engine) Update(ctx context.Context) (*UpdateReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.Start(ctx, "update")
	started := e.now()
	log := e.logger.With("run_id", runID)

	report, err := e.update(ctx, runID)
	span.End()
	span.Log(ctx)

	run := journal.Run{
		ID: runID, Kind: journal.KindUpdate, Generation: index.Auxiliary,
		Status: journal.StatusOK, StartedAt: started, FinishedAt: e.now(),
	}
	if report != nil {
		run.Detail.New = report.Delta.New
		run.Detail.Changed = report.Delta.Changed
		run.Detail.Removed = report.Delta.Removed
		if report.Build != nil {
			fillRun(&run, report.Build)
		}
		if report.NoChange() {
			run.Status = journal.StatusNoChange
		}
	}
	if err != nil {
		run.Status = journal.StatusFailed
		run.Detail.ErrorMessage = err.Error()
		log.Error("update failed", "error", err)
	}
	e.record(ctx, run)
	if err != nil {
		return nil, err
	}
	report.Duration = e.now().Sub(started)
	if report.Build != nil {
		report.Build.Duration = report.Duration
		e.metrics.BuildDuration.WithLabelValues(index.Auxiliary).Observe(report.Duration.Seconds())
	}
	if !report.NoChange() {
		e.notify(ctx, report.Build, report.Tombstoned)
	}
	return report, nil
}

func (e *Engine) update(ctx context.Context, runID string) (*UpdateReport, error) {
	log := logger.FromContext(ctx).With("component", "indexer")

	main, err := e.store.Load(index.Main)
	if err != nil {
		return nil, fmt.Errorf("loading primary generation: %w", err)
	}
	aux, err := e.store.LoadOptional(index.Auxiliary)
	if err != nil {
		return nil, fmt.Errorf("loading auxiliary generation: %w", err)
	}
	tombs, err := tombstone.Read(e.TombstonePath())
	if err != nil {
		return nil, fmt.Errorf("reading tombstones: %w", err)
	}
	ins, err := catalog.LoadInstructions(e.cfg.InstructionsFile)
	if err != nil {
		return nil, fmt.Errorf("loading instructions: %w", err)
	}
	disc, err := e.discover(ctx, ins)
	if err != nil {
		return nil, err
	}

	delta := ComputeDelta(EffectiveSnapshot(main, aux, tombs), disc.Files)
	e.metrics.IncrementalChangesSeen.WithLabelValues("new").Add(float64(len(delta.New)))
	e.metrics.IncrementalChangesSeen.WithLabelValues("changed").Add(float64(len(delta.Changed)))
	e.metrics.IncrementalChangesSeen.WithLabelValues("removed").Add(float64(len(delta.Removed)))

	report := &UpdateReport{RunID: runID, Delta: delta}
	if delta.Empty() {
		log.Info("no changes since last run")
		return report, nil
	}
	log.Info("changes detected",
		"new", len(delta.New),
		"changed", len(delta.Changed),
		"removed", len(delta.Removed),
	)

	var gen *index.Generation
	if len(delta.New) > 0 || len(delta.Changed) > 0 || aux != nil {
		files := auxiliaryFiles(main, tombs, disc.Files)
		var build *BuildReport
		gen, build, err = e.buildGeneration(ctx, index.Auxiliary, files, ins)
		if err != nil {
			return nil, err
		}
		build.RunID = runID
		build.Excluded = disc.Excluded
		report.Build = build
	}

	err = e.store.Commit(func() error {
		if gen != nil {
			if err := e.save(ctx, gen); err != nil {
				return err
			}
		}
		written, err := tombstone.Append(e.TombstonePath(), delta.Removed, e.cfg.DedupTombstones)
		if err != nil {
			return fmt.Errorf("appending tombstones: %w", err)
		}
		report.Tombstoned = written
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) discover(ctx context.Context, ins *catalog.Instructions) (*catalog.Result, error) {
	_, span := tracing.Start(ctx, "discover")
	defer span.End()
	disc, err := catalog.Discover(e.lister, e.root, e.cfg.Suffix, ins)
	if err != nil {
		return nil, fmt.Errorf("discovering documents: %w", err)
	}
	span.SetAttr("files", len(disc.Files))
	span.SetAttr("excluded", len(disc.Excluded))
	return disc, nil
}

// failure tags err with sentinel unless it already carries it.
func failure(path, reason string, sentinel, err error) *Failure {
	if apperrors.Is(err, sentinel) {
		err = fmt.Errorf("%s: %w", path, err)
	} else {
		err = apperrors.Wrap(sentinel, path, err)
	}
	return &Failure{Path: path, Reason: reason, Err: err}
}

// docResult is what a worker hands back for one catalog slot.
type docResult struct {
	doc     index.Document
	terms   index.DocTerms
	failure *Failure
}

// buildGeneration processes files in parallel and reduces the results in
// catalog order, so document ids follow the catalog with failed documents
// skipped.
func (e *Engine) buildGeneration(ctx context.Context, name string, files []catalog.File, ins *catalog.Instructions) (*index.Generation, *BuildReport, error) {
	log := logger.FromContext(ctx).With("component", "indexer", "generation", name)

	pctx, span := tracing.Start(ctx, "process")
	results := make([]docResult, len(files))
	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(e.workers())
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processDocument(f, ins)
			return nil
		})
	}
	err := g.Wait()
	span.SetAttr("documents", len(files))
	span.End()
	if err != nil {
		return nil, nil, fmt.Errorf("processing documents: %w", err)
	}

	_, rspan := tracing.Start(ctx, "reduce")
	mem := index.NewMemoryIndex()
	report := &BuildReport{Generation: name}
	for _, r := range results {
		if r.failure != nil {
			log.Warn("document skipped", "path", r.failure.Path, "reason", r.failure.Reason, "error", r.failure.Err)
			e.metrics.DocFailuresTotal.WithLabelValues(r.failure.Reason).Inc()
			report.Failures = append(report.Failures, *r.failure)
			continue
		}
		mem.AddDocument(r.doc, r.terms)
	}
	rspan.End()

	gen := mem.Generation(name, e.now().UTC())
	report.Documents = mem.DocCount()
	report.Terms = mem.TermCount()
	report.Tokens = mem.TokenCount()
	report.BuiltAt = gen.BuiltAt
	e.metrics.DocsIndexedTotal.Add(float64(report.Documents))
	e.metrics.TokensIndexedTotal.Add(float64(report.Tokens))
	return gen, report, nil
}

func (e *Engine) processDocument(f catalog.File, ins *catalog.Instructions) docResult {
	full := filepath.Join(e.root, filepath.FromSlash(f.Path))
	data, err := os.ReadFile(full)
	if err != nil {
		return docResult{failure: failure(f.Path, ReasonIO, apperrors.ErrIO, err)}
	}

	var info index.EncodingInfo
	if ins.ForcedEncoding(f.Path) {
		info = encoding.ForcedUTF8BOM()
	} else {
		sample := data
		if n := e.resolver.SampleBytes(); int64(len(sample)) > n {
			sample = sample[:n]
		}
		info, err = e.resolver.Resolve(sample, int64(len(data)))
		if err != nil {
			return docResult{failure: failure(f.Path, ReasonDecode, apperrors.ErrDecode, err)}
		}
	}

	text, err := encoding.Decode(data, info, nil)
	if err != nil {
		return docResult{failure: failure(f.Path, ReasonDecode, apperrors.ErrDecode, err)}
	}
	return docResult{
		doc: index.Document{
			Path:       f.Path,
			Encoding:   info,
			SizeBytes:  uint64(len(data)),
			ModifiedAt: f.ModifiedAt.UTC(),
		},
		terms: index.CollectTerms(tokenizer.Terms(text)),
	}
}

func (e *Engine) save(ctx context.Context, gen *index.Generation) error {
	_, span := tracing.Start(ctx, "save")
	defer span.End()
	span.SetAttr("generation", gen.Name)

	if err := e.store.Save(gen); err != nil {
		e.metrics.GenerationSavesTotal.WithLabelValues(gen.Name, "error").Inc()
		return fmt.Errorf("saving %s generation: %w", gen.Name, err)
	}
	e.metrics.GenerationSavesTotal.WithLabelValues(gen.Name, "ok").Inc()
	logger.FromContext(ctx).Info("generation committed",
		"component", "indexer",
		"generation", gen.Name,
		"documents", len(gen.Documents),
		"terms", len(gen.Index),
		"tokens", gen.TokenCount(),
	)
	return nil
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Engine) notify(ctx context.Context, report *BuildReport, removed []string) {
	if e.notifier == nil {
		return
	}
	ev := GenerationCommitted{
		RunID:   logger.RunID(ctx),
		Removed: removed,
	}
	if report != nil {
		ev.Generation = report.Generation
		ev.Documents = report.Documents
		ev.Terms = report.Terms
		ev.Tokens = report.Tokens
		ev.Failures = len(report.Failures)
		ev.BuiltAt = report.BuiltAt
	} else {
		ev.Generation = TombstonesEvent
		ev.BuiltAt = e.now().UTC()
	}
	if err := e.notifier.GenerationCommitted(ctx, ev); err != nil {
		e.logger.Warn("commit notification failed", "generation", ev.Generation, "error", err)
	}
}

func (e *Engine) record(ctx context.Context, run journal.Run) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, run); err != nil {
		e.logger.Warn("journal write failed", "run_id", run.ID, "error", err)
	}
}

func fillRun(run *journal.Run, r *BuildReport) {
	run.Documents = r.Documents
	run.Terms = r.Terms
	run.Tokens = r.Tokens
	run.Failures = len(r.Failures)
	run.Detail.Excluded = r.Excluded
	for _, f := range r.Failures {
		run.Detail.FailedPaths = append(run.Detail.FailedPaths, f.Path)
	}
}
