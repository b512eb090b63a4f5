// Package journal keeps a history of build and update runs in SQL.
//
// It owns a `mir_runs` table, created on first use:
//
//	CREATE TABLE mir_runs (
//	    id          TEXT PRIMARY KEY,
//	    kind        TEXT NOT NULL,
//	    generation  TEXT NOT NULL,
//	    status      TEXT NOT NULL,
//	    documents   INTEGER NOT NULL,
//	    terms       INTEGER NOT NULL,
//	    tokens      BIGINT NOT NULL,
//	    failures    INTEGER NOT NULL,
//	    detail      TEXT NOT NULL,
//	    started_at  TEXT NOT NULL,
//	    finished_at TEXT NOT NULL
//	);
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/pkg/database"
)

const schema = `CREATE TABLE IF NOT EXISTS mir_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	generation  TEXT NOT NULL,
	status      TEXT NOT NULL,
	documents   INTEGER NOT NULL,
	terms       INTEGER NOT NULL,
	tokens      BIGINT NOT NULL,
	failures    INTEGER NOT NULL,
	detail      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`

const (
	KindBuild  = "build"
	KindUpdate = "update"

	StatusOK       = "ok"
	StatusNoChange = "unchanged"
	StatusFailed   = "failed"
)

// Detail carries the variable-length part of a run.
type Detail struct {
	New          []string `json:"new,omitempty"`
	Changed      []string `json:"changed,omitempty"`
	Removed      []string `json:"removed,omitempty"`
	FailedPaths  []string `json:"failedPaths,omitempty"`
	Excluded     []string `json:"excluded,omitempty"`
	ErrorMessage string   `json:"error,omitempty"`
}

// Run is one row of the journal.
type Run struct {
	ID         string
	Kind       string
	Generation string
	Status     string
	Documents  int
	Terms      int
	Tokens     int64
	Failures   int
	Detail     Detail
	StartedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db     *database.Client
	logger *slog.Logger
}

// New ensures the schema exists.
func New(ctx context.Context, db *database.Client) (*Store, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "journal"),
	}, nil
}

func (s *Store) Record(ctx context.Context, run Run) error {
	detail, err := json.Marshal(run.Detail)
	if err != nil {
		return fmt.Errorf("marshaling run detail: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO mir_runs (id, kind, generation, status, documents, terms, tokens, failures, detail, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`),
		run.ID, run.Kind, run.Generation, run.Status,
		run.Documents, run.Terms, run.Tokens, run.Failures, string(detail),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	s.logger.Debug("run recorded", "run_id", run.ID, "kind", run.Kind, "status", run.Status)
	return nil
}

// Recent returns the last limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(
		`SELECT id, kind, generation, status, documents, terms, tokens, failures, detail, started_at, finished_at
		 FROM mir_runs ORDER BY started_at DESC LIMIT $1`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable run", "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get loads one run. It returns nil, nil when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.DB.QueryRowContext(ctx, s.db.Rebind(
		`SELECT id, kind, generation, status, documents, terms, tokens, failures, detail, started_at, finished_at
		 FROM mir_runs WHERE id = $1`),
		id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run               Run
		detail            string
		started, finished string
	)
	err := sc.Scan(&run.ID, &run.Kind, &run.Generation, &run.Status,
		&run.Documents, &run.Terms, &run.Tokens, &run.Failures, &detail, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(detail), &run.Detail); err != nil {
		return Run{}, fmt.Errorf("decoding detail of run %s: %w", run.ID, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parsing start of run %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, fmt.Errorf("parsing end of run %s: %w", run.ID, err)
	}
	return run, nil
}
