// Package ranker orders the documents matching a conjunctive query.
package ranker

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

type Mode int

const (
	// ModeInternal keeps merged catalog order and does not score.
	ModeInternal Mode = 0
	// ModeTFIDF scores over the merged index.
	ModeTFIDF Mode = 1
	// ModeQuasiTFIDF scores with frequencies and document counts taken from
	// the unmerged generations. It is an approximation meant for use before
	// a full rebuild.
	ModeQuasiTFIDF Mode = 2
	// ModeProximity ranks by how close adjacent query terms occur.
	ModeProximity Mode = 4
)

// ParseMode accepts only implemented modes.
func ParseMode(n int) (Mode, error) {
	switch m := Mode(n); m {
	case ModeInternal, ModeTFIDF, ModeQuasiTFIDF, ModeProximity:
		return m, nil
	}
	return 0, apperrors.Newf(apperrors.ErrUnsupportedRankingMode, "", "mode %d", n)
}

func (m Mode) String() string {
	switch m {
	case ModeInternal:
		return "internal"
	case ModeTFIDF:
		return "tfidf"
	case ModeQuasiTFIDF:
		return "quasi-tfidf"
	case ModeProximity:
		return "proximity"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// NeedsPositions reports whether the position tables must be loaded.
func (m Mode) NeedsPositions() bool {
	return m == ModeProximity
}

// Scored reports whether ScoredDoc.Score carries meaning.
func (m Mode) Scored() bool {
	return m != ModeInternal
}

type ScoredDoc struct {
	DocID uint32  `json:"docId"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Rank orders candidates, which must be merged document ids matching every
// term. limit <= 0 keeps all results.
func Rank(ix *merger.Index, terms []string, candidates []uint32, mode Mode, limit int) ([]ScoredDoc, error) {
	var (
		scores []ScoredDoc
		err    error
	)
	switch mode {
	case ModeInternal:
		scores = internalOrder(ix, candidates)
	case ModeTFIDF:
		scores = tfidf(ix, terms, candidates)
	case ModeQuasiTFIDF:
		scores = quasiTFIDF(ix, terms, candidates)
	case ModeProximity:
		scores, err = proximity(ix, terms, candidates)
	default:
		return nil, apperrors.Newf(apperrors.ErrUnsupportedRankingMode, "", "mode %d", int(mode))
	}
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i].Score = math.Round(scores[i].Score*10000) / 10000
	}
	switch mode {
	case ModeTFIDF, ModeQuasiTFIDF:
		slices.SortStableFunc(scores, func(a, b ScoredDoc) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.DocID, b.DocID)
		})
	case ModeProximity:
		slices.SortStableFunc(scores, func(a, b ScoredDoc) int {
			if c := cmp.Compare(a.Score, b.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.DocID, b.DocID)
		})
	}
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func internalOrder(ix *merger.Index, candidates []uint32) []ScoredDoc {
	out := make([]ScoredDoc, len(candidates))
	for i, id := range candidates {
		out[i] = ScoredDoc{DocID: id, Path: ix.Documents[id].Path}
	}
	slices.SortFunc(out, func(a, b ScoredDoc) int { return cmp.Compare(a.DocID, b.DocID) })
	return out
}

// idf is log10((n-1)/df), zero when the collection is too small for the
// ratio to be defined.
func idf(n, df int) float64 {
	if n <= 1 || df <= 0 {
		return 0
	}
	return math.Log10(float64(n-1) / float64(df))
}

func tfWeight(tf uint32) float64 {
	if tf == 0 {
		return 0
	}
	return 1 + math.Log10(float64(tf))
}

func tfidf(ix *merger.Index, terms []string, candidates []uint32) []ScoredDoc {
	n := ix.LiveCount()
	weights := make([]float64, len(terms))
	for i, t := range terms {
		weights[i] = idf(n, len(ix.Postings(t)))
	}
	out := make([]ScoredDoc, len(candidates))
	for i, id := range candidates {
		var score float64
		for j, t := range terms {
			if p, ok := ix.Postings(t).Find(id); ok {
				score += tfWeight(p.Frequency) * weights[j]
			}
		}
		out[i] = ScoredDoc{DocID: id, Path: ix.Documents[id].Path, Score: score}
	}
	return out
}

// quasiTFIDF sums a document's frequencies over both generations, stale
// main postings included, and takes N and df from the raw catalogs.
func quasiTFIDF(ix *merger.Index, terms []string, candidates []uint32) []ScoredDoc {
	n := ix.RawDocumentCount()
	weights := make([]float64, len(terms))
	for i, t := range terms {
		weights[i] = idf(n, ix.RawDF(t))
	}
	out := make([]ScoredDoc, len(candidates))
	for i, id := range candidates {
		var score float64
		for j, t := range terms {
			score += tfWeight(ix.RawFrequency(id, t)) * weights[j]
		}
		out[i] = ScoredDoc{DocID: id, Path: ix.Documents[id].Path, Score: score}
	}
	return out
}

// proximity scores each document with the sum, over adjacent query term
// pairs, of the smallest offset distance between the two terms.
//
// Each pair scans the full cross product of both offset lists, so the cost
// per document is O(f1*f2). That is fine for prose but a hotspot when a pair
// of terms is extremely frequent in one document.
func proximity(ix *merger.Index, terms []string, candidates []uint32) ([]ScoredDoc, error) {
	out := make([]ScoredDoc, len(candidates))
	for i, id := range candidates {
		var score float64
		for j := 0; j+1 < len(terms); j++ {
			a, err := offsets(ix, terms[j], id)
			if err != nil {
				return nil, err
			}
			b, err := offsets(ix, terms[j+1], id)
			if err != nil {
				return nil, err
			}
			score += float64(minDistance(a, b))
		}
		out[i] = ScoredDoc{DocID: id, Path: ix.Documents[id].Path, Score: score}
	}
	return out, nil
}

func offsets(ix *merger.Index, term string, id uint32) ([]uint32, error) {
	p, ok := ix.Postings(term).Find(id)
	if !ok {
		return nil, fmt.Errorf("doc %d has no posting for %q", id, term)
	}
	return ix.Offsets(p)
}

func minDistance(a, b []uint32) uint32 {
	best := uint32(math.MaxUint32)
	for _, x := range a {
		for _, y := range b {
			d := x - y
			if y > x {
				d = y - x
			}
			if d < best {
				best = d
			}
		}
	}
	return best
}
