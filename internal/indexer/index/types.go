// Package index holds the in-memory model of one index generation: the
// document catalog, the inverted index with its per-term posting lists, and
// the flat position table the postings point into.
package index

import (
	"fmt"
	"sort"
	"time"
)

// FormatVersion tags every persisted generation. Loading a generation with a
// different tag fails instead of attempting a lenient parse.
const FormatVersion = "MIR 2.0/go"

// Generation names.
const (
	Main      = "main"
	Auxiliary = "auxiliary"
)

// ErrorPolicy selects how undecodable input is treated.
type ErrorPolicy int

const (
	Strict ErrorPolicy = iota
	Replace
	Mixed
)

func (p ErrorPolicy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Replace:
		return "replace"
	case Mixed:
		return "mixed"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

func (p ErrorPolicy) MarshalText() ([]byte, error) {
	if p < Strict || p > Mixed {
		return nil, fmt.Errorf("unknown error policy %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *ErrorPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "strict":
		*p = Strict
	case "replace":
		*p = Replace
	case "mixed":
		*p = Mixed
	default:
		return fmt.Errorf("unknown error policy %q", text)
	}
	return nil
}

// EncodingInfo is the decoding contract derived once per document.
type EncodingInfo struct {
	Name        string      `json:"name"`
	Confidence  float64     `json:"confidence"`
	ErrorPolicy ErrorPolicy `json:"errors"`
}

type Document struct {
	ID         uint32
	Path       string
	Encoding   EncodingInfo
	SizeBytes  uint64
	ModifiedAt time.Time
}

// Posting records one term's occurrences in one document. The Frequency
// offsets starting at PositionStart in the generation's position table are
// the term's token offsets in that document, ascending.
type Posting struct {
	DocID         uint32
	Frequency     uint32
	PositionStart uint32
}

// PostingList is sorted by ascending DocID with no duplicate DocID.
type PostingList []Posting

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID uint32) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

type InvertedIndex map[string]PostingList

// Terms returns the vocabulary in ascending order.
func (ii InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(ii))
	for t := range ii {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Generation is the atomic persisted unit.
type Generation struct {
	Name          string
	FormatVersion string
	Documents     []Document
	Index         InvertedIndex
	Positions     []uint32
	BuiltAt       time.Time
}

// PositionsLoaded reports whether the position table is in memory. The table
// is loaded lazily because only proximity ranking needs it.
func (g *Generation) PositionsLoaded() bool {
	return g.Positions != nil || len(g.Index) == 0
}

// Offsets returns the slice of the position table owned by p.
func (g *Generation) Offsets(p Posting) ([]uint32, error) {
	end := uint64(p.PositionStart) + uint64(p.Frequency)
	if end > uint64(len(g.Positions)) {
		return nil, fmt.Errorf("posting for doc %d spans [%d,%d) beyond position table of %d entries",
			p.DocID, p.PositionStart, end, len(g.Positions))
	}
	return g.Positions[p.PositionStart:end], nil
}

// TokenCount sums all posting frequencies.
func (g *Generation) TokenCount() int64 {
	var n int64
	for _, pl := range g.Index {
		for _, p := range pl {
			n += int64(p.Frequency)
		}
	}
	return n
}

// Validate checks the structural invariants: dense document ids, unique
// paths, posting lists sorted by DocID without duplicates and pointing at
// existing documents, and, when the position table is loaded, in-bounds
// ascending offset slices.
func (g *Generation) Validate() error {
	paths := make(map[string]struct{}, len(g.Documents))
	for i, d := range g.Documents {
		if d.ID != uint32(i) {
			return fmt.Errorf("document %q has id %d at catalog slot %d", d.Path, d.ID, i)
		}
		if _, dup := paths[d.Path]; dup {
			return fmt.Errorf("duplicate document path %q", d.Path)
		}
		paths[d.Path] = struct{}{}
	}
	for term, pl := range g.Index {
		if term == "" {
			return fmt.Errorf("empty term in index")
		}
		for i, p := range pl {
			if int(p.DocID) >= len(g.Documents) {
				return fmt.Errorf("term %q references unknown doc %d", term, p.DocID)
			}
			if p.Frequency == 0 {
				return fmt.Errorf("term %q has zero-frequency posting for doc %d", term, p.DocID)
			}
			if i > 0 && pl[i-1].DocID >= p.DocID {
				return fmt.Errorf("term %q postings not strictly ascending at %d", term, i)
			}
			if g.Positions == nil {
				continue
			}
			offsets, err := g.Offsets(p)
			if err != nil {
				return fmt.Errorf("term %q: %w", term, err)
			}
			for j := 1; j < len(offsets); j++ {
				if offsets[j] < offsets[j-1] {
					return fmt.Errorf("term %q doc %d offsets not ascending", term, p.DocID)
				}
			}
		}
	}
	return nil
}
