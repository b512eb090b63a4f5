package index

import (
	"iter"
	"time"
)

// TermOccurrences lists one term's token offsets within a document.
type TermOccurrences struct {
	Term    string
	Offsets []uint32
}

// DocTerms is the isolated per-document result a worker hands to the
// reducer: terms in first-occurrence order with their offsets.
type DocTerms struct {
	Terms  []TermOccurrences
	Tokens int
}

// CollectTerms drains a tokenizer sequence into a DocTerms.
func CollectTerms(seq iter.Seq2[string, int]) DocTerms {
	var dt DocTerms
	slot := make(map[string]int)
	for term, pos := range seq {
		if term == "" {
			continue
		}
		dt.Tokens++
		i, ok := slot[term]
		if !ok {
			i = len(dt.Terms)
			slot[term] = i
			dt.Terms = append(dt.Terms, TermOccurrences{Term: term, Offsets: make([]uint32, 0, 4)})
		}
		dt.Terms[i].Offsets = append(dt.Terms[i].Offsets, uint32(pos))
	}
	return dt
}

// MemoryIndex accumulates documents into a generation. It is owned by a
// single reducer goroutine and is not safe for concurrent use.
type MemoryIndex struct {
	documents []Document
	index     InvertedIndex
	positions []uint32
	tokens    int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:     make(InvertedIndex),
		positions: make([]uint32, 0, 1024),
	}
}

// AddDocument assigns the next document id, appends the document's offsets to
// the position table term by term, and appends one posting per term. Ids only
// grow, so every posting list stays sorted by DocID.
func (m *MemoryIndex) AddDocument(doc Document, terms DocTerms) Document {
	doc.ID = uint32(len(m.documents))
	for _, occ := range terms.Terms {
		start := uint32(len(m.positions))
		m.positions = append(m.positions, occ.Offsets...)
		m.index[occ.Term] = append(m.index[occ.Term], Posting{
			DocID:         doc.ID,
			Frequency:     uint32(len(occ.Offsets)),
			PositionStart: start,
		})
	}
	m.documents = append(m.documents, doc)
	m.tokens += int64(terms.Tokens)
	return doc
}

func (m *MemoryIndex) DocCount() int {
	return len(m.documents)
}

func (m *MemoryIndex) TermCount() int {
	return len(m.index)
}

// TokenCount is the running total of tokens, duplicates included. It is kept
// for reporting only.
func (m *MemoryIndex) TokenCount() int64 {
	return m.tokens
}

// Generation freezes the accumulated state. The MemoryIndex must not be used
// afterwards.
func (m *MemoryIndex) Generation(name string, builtAt time.Time) *Generation {
	return &Generation{
		Name:          name,
		FormatVersion: FormatVersion,
		Documents:     m.documents,
		Index:         m.index,
		Positions:     m.positions,
		BuiltAt:       builtAt,
	}
}
