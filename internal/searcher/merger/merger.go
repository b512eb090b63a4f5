// Package merger combines the primary generation, the optional auxiliary
// generation and the tombstone list into the single view queries run on.
// Document ids of the two generations are not comparable; the merged view
// keeps an explicit mapping from each merged id back to its local ids.
package merger

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
)

type Source uint8

const (
	FromMain Source = iota
	FromAuxiliary
)

func (s Source) String() string {
	if s == FromAuxiliary {
		return index.Auxiliary
	}
	return index.Main
}

// NoLocal marks a merged document without a counterpart in a generation.
const NoLocal = -1

// Document is one entry of the merged catalog. MainLocal and AuxLocal are
// the document's ids in each generation, or NoLocal.
type Document struct {
	ID        uint32
	Path      string
	Live      bool
	Source    Source
	MainLocal int
	AuxLocal  int
}

// Posting is a posting keyed by merged document id. PositionStart still
// points into the position table of Source.
type Posting struct {
	DocID         uint32
	Frequency     uint32
	PositionStart uint32
	Source        Source
}

// PostingList is sorted by ascending DocID with no duplicate DocID.
type PostingList []Posting

type Stats struct {
	MainDocuments  int `json:"mainDocuments"`
	AuxDocuments   int `json:"auxDocuments"`
	Tombstoned     int `json:"tombstoned"`
	Superseded     int `json:"superseded"`
	Appended       int `json:"appended"`
	StaleOrRemoved int `json:"staleOrRemoved"`
	LiveDocuments  int `json:"liveDocuments"`
	Terms          int `json:"terms"`
}

type Index struct {
	Documents  []Document
	Terms      map[string]PostingList
	Main       *index.Generation
	Auxiliary  *index.Generation
	Tombstones []string
	Stats      Stats
}

// MergeForQuery builds the merged view:
//  1. main documents whose path is tombstoned stop being live and lose
//     their postings;
//  2. an auxiliary document whose path matches a live main document takes
//     over that document's id, and every main posting of the replaced
//     version is dropped;
//  3. any other auxiliary document is appended under a fresh id, which is
//     also how a tombstoned path that reappeared in the auxiliary
//     generation comes back;
//  4. auxiliary postings are spliced into the main lists in docId order.
func MergeForQuery(main, aux *index.Generation, tombstones []string) (*Index, error) {
	if main == nil {
		return nil, fmt.Errorf("merging: primary generation is required")
	}
	dead := make(map[string]struct{}, len(tombstones))
	uniq := make([]string, 0, len(tombstones))
	for _, p := range tombstones {
		if _, ok := dead[p]; ok {
			continue
		}
		dead[p] = struct{}{}
		uniq = append(uniq, p)
	}

	ix := &Index{
		Documents:  make([]Document, 0, len(main.Documents)),
		Terms:      make(map[string]PostingList, len(main.Index)),
		Main:       main,
		Auxiliary:  aux,
		Tombstones: uniq,
	}
	ix.Stats.MainDocuments = len(main.Documents)

	live := make(map[string]uint32, len(main.Documents))
	for _, d := range main.Documents {
		_, tomb := dead[d.Path]
		ix.Documents = append(ix.Documents, Document{
			ID:        d.ID,
			Path:      d.Path,
			Live:      !tomb,
			Source:    FromMain,
			MainLocal: int(d.ID),
			AuxLocal:  NoLocal,
		})
		if tomb {
			ix.Stats.Tombstoned++
			continue
		}
		live[d.Path] = d.ID
	}

	var remap []uint32
	superseded := make(map[uint32]struct{})
	if aux != nil {
		ix.Stats.AuxDocuments = len(aux.Documents)
		remap = make([]uint32, len(aux.Documents))
		for _, d := range aux.Documents {
			if id, ok := live[d.Path]; ok {
				remap[d.ID] = id
				superseded[id] = struct{}{}
				doc := &ix.Documents[id]
				doc.Source = FromAuxiliary
				doc.AuxLocal = int(d.ID)
				continue
			}
			id := uint32(len(ix.Documents))
			remap[d.ID] = id
			ix.Documents = append(ix.Documents, Document{
				ID:        id,
				Path:      d.Path,
				Live:      true,
				Source:    FromAuxiliary,
				MainLocal: NoLocal,
				AuxLocal:  int(d.ID),
			})
			ix.Stats.Appended++
		}
		ix.Stats.Superseded = len(superseded)
	}

	for term, pl := range main.Index {
		kept := make(PostingList, 0, len(pl))
		for _, p := range pl {
			if !ix.Documents[p.DocID].Live {
				continue
			}
			if _, ok := superseded[p.DocID]; ok {
				continue
			}
			kept = append(kept, Posting{DocID: p.DocID, Frequency: p.Frequency, PositionStart: p.PositionStart, Source: FromMain})
		}
		if len(kept) > 0 {
			ix.Terms[term] = kept
		}
	}

	if aux != nil {
		for term, pl := range aux.Index {
			incoming := make(PostingList, len(pl))
			for i, p := range pl {
				incoming[i] = Posting{DocID: remap[p.DocID], Frequency: p.Frequency, PositionStart: p.PositionStart, Source: FromAuxiliary}
			}
			slices.SortFunc(incoming, func(a, b Posting) int { return cmp.Compare(a.DocID, b.DocID) })
			ix.Terms[term] = splice(ix.Terms[term], incoming)
		}
	}

	for _, d := range ix.Documents {
		if d.Live {
			ix.Stats.LiveDocuments++
		}
	}
	ix.Stats.StaleOrRemoved = ix.Stats.Tombstoned + ix.Stats.Superseded
	ix.Stats.Terms = len(ix.Terms)
	return ix, nil
}

// splice merges two sorted lists. On equal DocID the incoming posting
// replaces the existing one.
func splice(existing, incoming PostingList) PostingList {
	out := make(PostingList, 0, len(existing)+len(incoming))
	i, j := 0, 0
	for i < len(existing) && j < len(incoming) {
		switch {
		case existing[i].DocID < incoming[j].DocID:
			out = append(out, existing[i])
			i++
		case existing[i].DocID > incoming[j].DocID:
			out = append(out, incoming[j])
			j++
		default:
			out = append(out, incoming[j])
			i++
			j++
		}
	}
	out = append(out, existing[i:]...)
	return append(out, incoming[j:]...)
}

// Postings returns the merged list for term, nil when the term is unknown.
func (ix *Index) Postings(term string) PostingList {
	return ix.Terms[term]
}

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID uint32) (Posting, bool) {
	i, ok := slices.BinarySearchFunc(pl, docID, func(p Posting, id uint32) int { return cmp.Compare(p.DocID, id) })
	if !ok {
		return Posting{}, false
	}
	return pl[i], true
}

func (ix *Index) Generation(s Source) *index.Generation {
	if s == FromAuxiliary {
		return ix.Auxiliary
	}
	return ix.Main
}

// Offsets returns the token offsets behind p. The owning generation's
// position table must be loaded.
func (ix *Index) Offsets(p Posting) ([]uint32, error) {
	gen := ix.Generation(p.Source)
	if gen == nil {
		return nil, fmt.Errorf("posting for doc %d refers to a missing %s generation", p.DocID, p.Source)
	}
	if !gen.PositionsLoaded() {
		return nil, fmt.Errorf("%s position table not loaded", p.Source)
	}
	return gen.Offsets(index.Posting{DocID: p.DocID, Frequency: p.Frequency, PositionStart: p.PositionStart})
}

// LiveCount is the number of queryable documents.
func (ix *Index) LiveCount() int {
	return ix.Stats.LiveDocuments
}

// RawDocumentCount counts both catalogs as stored, tombstoned and
// superseded documents included.
func (ix *Index) RawDocumentCount() int {
	n := len(ix.Main.Documents)
	if ix.Auxiliary != nil {
		n += len(ix.Auxiliary.Documents)
	}
	return n
}

// RawDF is the posting count of term summed over both unmerged generations.
func (ix *Index) RawDF(term string) int {
	n := len(ix.Main.Index[term])
	if ix.Auxiliary != nil {
		n += len(ix.Auxiliary.Index[term])
	}
	return n
}

// RawFrequency sums the stored frequencies of term for merged document id
// across both generations, stale main postings included.
func (ix *Index) RawFrequency(docID uint32, term string) uint32 {
	d := ix.Documents[docID]
	var tf uint32
	if d.MainLocal != NoLocal {
		if p, ok := ix.Main.Index[term].Find(uint32(d.MainLocal)); ok {
			tf += p.Frequency
		}
	}
	if d.AuxLocal != NoLocal && ix.Auxiliary != nil {
		if p, ok := ix.Auxiliary.Index[term].Find(uint32(d.AuxLocal)); ok {
			tf += p.Frequency
		}
	}
	return tf
}
