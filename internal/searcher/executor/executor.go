// Package executor evaluates conjunctive queries: it loads the persisted
// generations, applies tombstones, merges, intersects posting lists and
// ranks the matches.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tombstone"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/tracing"
)

// TermStat reports one query term. Found is false when the term has no
// postings at all, which is distinct from a term present in documents that
// fail the conjunction.
type TermStat struct {
	Term   string   `json:"term"`
	Found  bool     `json:"found"`
	DF     int      `json:"df"`
	DocIDs []uint32 `json:"docIds"`
}

type SearchResult struct {
	Query     string             `json:"query"`
	Terms     []string           `json:"terms"`
	Mode      int                `json:"mode"`
	TermStats []TermStat         `json:"termStats"`
	Missing   []string           `json:"missing,omitempty"`
	TotalHits int                `json:"totalHits"`
	Results   []ranker.ScoredDoc `json:"results"`
	Merge     merger.Stats       `json:"merge"`
}

// MissingErr describes the missing terms with ErrTermNotFound, or returns
// nil when every term was found.
func (r *SearchResult) MissingErr() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return apperrors.Newf(apperrors.ErrTermNotFound, "", "%v", r.Missing)
}

type Executor struct {
	store         *segment.Store
	tombstonePath string
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// New creates an executor reading generations from store. m may be nil.
func New(store *segment.Store, m *metrics.Metrics) *Executor {
	return &Executor{
		store:         store,
		tombstonePath: filepath.Join(store.Dir(), tombstone.FileName),
		metrics:       m,
		logger:        logger.WithComponent("query-executor"),
	}
}

// Load reads the primary and auxiliary generations and the tombstone list
// as one consistent state and merges them.
func (e *Executor) Load(ctx context.Context) (*merger.Index, error) {
	_, span := tracing.Start(ctx, "load")
	defer span.End()

	var (
		main, aux *index.Generation
		tombs     []string
	)
	err := e.store.View(func() error {
		var err error
		if main, err = e.store.Load(index.Main); err != nil {
			return err
		}
		if aux, err = e.store.LoadOptional(index.Auxiliary); err != nil {
			return err
		}
		tombs, err = tombstone.Read(e.tombstonePath)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	ix, err := merger.MergeForQuery(main, aux, tombs)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.TombstonedDocs.Set(float64(ix.Stats.Tombstoned))
	}
	span.SetAttr("documents", len(ix.Documents))
	span.SetAttr("terms", len(ix.Terms))
	return ix, nil
}

// LoadPositions makes the position tables of ix available for ranking.
func (e *Executor) LoadPositions(ix *merger.Index) error {
	if err := e.store.LoadPositions(ix.Main); err != nil {
		return fmt.Errorf("loading primary positions: %w", err)
	}
	if err := e.store.LoadPositions(ix.Auxiliary); err != nil {
		return fmt.Errorf("loading auxiliary positions: %w", err)
	}
	return nil
}

// Execute validates the mode before touching the disk, then loads, merges
// and evaluates.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, modeNum, limit int) (*SearchResult, error) {
	ctx, span := tracing.Start(ctx, "query")
	defer func() {
		span.End()
		span.Log(ctx)
	}()
	start := time.Now()

	mode, err := ranker.ParseMode(modeNum)
	if err != nil {
		e.observe(strconv.Itoa(modeNum), "error", start)
		return nil, err
	}
	ix, err := e.Load(ctx)
	if err != nil {
		e.observe(mode.String(), "error", start)
		return nil, err
	}
	res, err := e.Evaluate(ctx, ix, plan, mode, limit)
	if err != nil {
		e.observe(mode.String(), "error", start)
		return nil, err
	}
	status := "ok"
	if res.TotalHits == 0 {
		status = "empty"
	}
	e.observe(mode.String(), status, start)
	return res, nil
}

// Evaluate runs plan against an already merged index.
func (e *Executor) Evaluate(ctx context.Context, ix *merger.Index, plan *parser.QueryPlan, mode ranker.Mode, limit int) (*SearchResult, error) {
	res := &SearchResult{
		Query:     plan.RawQuery,
		Terms:     plan.Terms,
		Mode:      int(mode),
		TermStats: make([]TermStat, 0, len(plan.Terms)),
		Results:   []ranker.ScoredDoc{},
		Merge:     ix.Stats,
	}
	if plan.Empty() {
		return res, nil
	}

	lists := make([]merger.PostingList, 0, len(plan.Terms))
	for _, term := range plan.Terms {
		pl := ix.Postings(term)
		stat := TermStat{Term: term, Found: len(pl) > 0, DF: len(pl), DocIDs: make([]uint32, len(pl))}
		for i, p := range pl {
			stat.DocIDs[i] = p.DocID
		}
		if !stat.Found {
			res.Missing = append(res.Missing, term)
		}
		res.TermStats = append(res.TermStats, stat)
		lists = append(lists, pl)
	}
	if len(res.Missing) > 0 {
		e.logger.Info("query term not found", "query", plan.RawQuery, "missing", res.Missing)
		return res, nil
	}

	candidates := Intersect(lists)
	res.TotalHits = len(candidates)
	if len(candidates) == 0 {
		return res, nil
	}

	if mode.NeedsPositions() {
		if err := e.LoadPositions(ix); err != nil {
			return nil, err
		}
	}
	_, span := tracing.Start(ctx, "rank")
	ranked, err := ranker.Rank(ix, plan.Terms, candidates, mode, limit)
	span.SetAttr("mode", mode.String())
	span.End()
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	res.Results = ranked
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"mode", mode.String(),
		"candidates", len(candidates),
		"results", len(ranked),
	)
	return res, nil
}

// Intersect returns the doc ids present in every list, ascending. It walks
// the shortest list and probes the others by binary search.
func Intersect(lists []merger.PostingList) []uint32 {
	if len(lists) == 0 {
		return nil
	}
	shortest := 0
	for i, pl := range lists {
		if len(pl) < len(lists[shortest]) {
			shortest = i
		}
	}
	out := make([]uint32, 0, len(lists[shortest]))
	for _, p := range lists[shortest] {
		all := true
		for i, pl := range lists {
			if i == shortest {
				continue
			}
			if _, ok := pl.Find(p.DocID); !ok {
				all = false
				break
			}
		}
		if all {
			out = append(out, p.DocID)
		}
	}
	return out
}

// Stamp identifies the state queries currently see: the build times of both
// generations and the size of the tombstone list.
func (e *Executor) Stamp() (string, error) {
	var stamp string
	err := e.store.View(func() error {
		mainTS, ok, err := e.store.Stamp(index.Main)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.New(apperrors.ErrNoGeneration, e.store.GenerationPath(index.Main), "primary generation has not been built")
		}
		auxTS, _, err := e.store.Stamp(index.Auxiliary)
		if err != nil {
			return err
		}
		var tombSize int64
		if st, err := os.Stat(e.tombstonePath); err == nil {
			tombSize = st.Size()
		}
		stamp = fmt.Sprintf("%d:%d:%d", mainTS.UnixNano(), auxTS.UnixNano(), tombSize)
		return nil
	})
	return stamp, err
}

func (e *Executor) observe(mode, status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueriesTotal.WithLabelValues(mode, status).Inc()
	e.metrics.QueryLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
