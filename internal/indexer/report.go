package indexer

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/journal"
)

// Failure reasons.
const (
	ReasonIO     = "io"
	ReasonDecode = "decode"
)

// TombstonesEvent names commit events that only appended tombstones.
const TombstonesEvent = "tombstones"

// Failure is a document dropped from a generation.
type Failure struct {
	Path   string
	Reason string
	Err    error
}

// BuildReport summarises one generation build.
type BuildReport struct {
	RunID      string
	Generation string
	Documents  int
	Terms      int
	Tokens     int64
	Failures   []Failure
	Excluded   []string
	BuiltAt    time.Time
	Duration   time.Duration
}

// UpdateReport summarises an incremental run. Build is nil when the delta
// was empty and nothing was written.
type UpdateReport struct {
	RunID      string
	Delta      Delta
	Build      *BuildReport
	Tombstoned []string
	Duration   time.Duration
}

func (r *UpdateReport) NoChange() bool {
	return r.Build == nil && len(r.Tombstoned) == 0
}

// GenerationCommitted is announced after a generation is durably saved.
type GenerationCommitted struct {
	RunID      string    `json:"runId"`
	Generation string    `json:"generation"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Tokens     int64     `json:"tokens"`
	Failures   int       `json:"failures"`
	BuiltAt    time.Time `json:"builtAt"`
	Removed    []string  `json:"removed,omitempty"`
}

// Notifier is told about every committed generation.
type Notifier interface {
	GenerationCommitted(ctx context.Context, ev GenerationCommitted) error
}

// Journal keeps a history of runs.
type Journal interface {
	Record(ctx context.Context, run journal.Run) error
}
