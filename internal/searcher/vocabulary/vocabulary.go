// Package vocabulary reports the most widespread terms of a merged index.
package vocabulary

import (
	"cmp"
	"regexp"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/merger"
)

// Filter narrows the vocabulary. A term is kept when it matches Include
// (if set) and does not match Exclude (if set).
type Filter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

func (f Filter) keep(term string) bool {
	if f.Include != nil && !f.Include.MatchString(term) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(term) {
		return false
	}
	return true
}

type Entry struct {
	Term   string   `json:"term"`
	DF     int      `json:"df"`
	DocIDs []uint32 `json:"docIds"`
}

// Report holds the top entries. Total counts every term of the index,
// Matched and Unmatched split it by the filter, and Documents is the number
// of distinct documents covered by the returned entries.
type Report struct {
	Entries   []Entry `json:"entries"`
	Total     int     `json:"total"`
	Matched   int     `json:"matched"`
	Unmatched int     `json:"unmatched"`
	Documents int     `json:"documents"`
}

// Top returns up to n entries ordered by descending DF, then ascending term.
// n <= 0 returns every matching term.
func Top(ix *merger.Index, n int, f Filter) *Report {
	r := &Report{Total: len(ix.Terms), Entries: []Entry{}}
	for term, pl := range ix.Terms {
		if !f.keep(term) {
			r.Unmatched++
			continue
		}
		r.Matched++
		ids := make([]uint32, len(pl))
		for i, p := range pl {
			ids[i] = p.DocID
		}
		r.Entries = append(r.Entries, Entry{Term: term, DF: len(pl), DocIDs: ids})
	}
	slices.SortFunc(r.Entries, func(a, b Entry) int {
		if c := cmp.Compare(b.DF, a.DF); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if n > 0 && len(r.Entries) > n {
		r.Entries = r.Entries[:n]
	}

	seen := make(map[uint32]struct{})
	for _, e := range r.Entries {
		for _, id := range e.DocIDs {
			seen[id] = struct{}{}
		}
	}
	r.Documents = len(seen)
	return r
}
