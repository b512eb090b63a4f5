package indexer

import (
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
)

// Snapshot maps a relative path to its modification time.
type Snapshot map[string]time.Time

// Delta is the difference between two snapshots. Each list is sorted.
type Delta struct {
	New     []string `json:"new"`
	Changed []string `json:"changed"`
	Removed []string `json:"removed"`
}

func (d Delta) Empty() bool {
	return len(d.New) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// SnapshotOf lists the documents of gen.
func SnapshotOf(gen *index.Generation) Snapshot {
	s := make(Snapshot)
	if gen == nil {
		return s
	}
	for _, d := range gen.Documents {
		s[d.Path] = d.ModifiedAt
	}
	return s
}

// EffectiveSnapshot is what queries currently see: main without tombstoned
// paths, overlaid by the auxiliary generation.
func EffectiveSnapshot(main, aux *index.Generation, tombstones []string) Snapshot {
	s := SnapshotOf(main)
	for _, p := range tombstones {
		delete(s, p)
	}
	if aux != nil {
		for _, d := range aux.Documents {
			s[d.Path] = d.ModifiedAt
		}
	}
	return s
}

// ComputeDelta compares the previous snapshot with the files on disk.
func ComputeDelta(prev Snapshot, files []catalog.File) Delta {
	var d Delta
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
		old, ok := prev[f.Path]
		switch {
		case !ok:
			d.New = append(d.New, f.Path)
		case !old.Equal(f.ModifiedAt):
			d.Changed = append(d.Changed, f.Path)
		}
	}
	for p := range prev {
		if _, ok := seen[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	slices.Sort(d.New)
	slices.Sort(d.Changed)
	slices.Sort(d.Removed)
	return d
}

// auxiliaryFiles selects, in catalog order, every file that differs from
// main: absent from it, modified since, or tombstoned there.
func auxiliaryFiles(main *index.Generation, tombstones []string, files []catalog.File) []catalog.File {
	base := SnapshotOf(main)
	dead := make(map[string]struct{}, len(tombstones))
	for _, p := range tombstones {
		dead[p] = struct{}{}
	}
	out := make([]catalog.File, 0)
	for _, f := range files {
		mt, ok := base[f.Path]
		_, tomb := dead[f.Path]
		if !ok || tomb || !mt.Equal(f.ModifiedAt) {
			out = append(out, f)
		}
	}
	return out
}
