package index

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tokenizer"
)

func buildScenario(t *testing.T) *Generation {
	t.Helper()
	mem := NewMemoryIndex()
	for _, d := range []struct{ path, text string }{
		{"A.txt", "cat dog cat"},
		{"B.txt", "dog bird"},
		{"C.txt", "cat bird bird"},
	} {
		mem.AddDocument(Document{Path: d.path}, CollectTerms(tokenizer.Terms(d.text)))
	}
	assert.Equal(t, int64(8), mem.TokenCount())
	assert.Equal(t, 3, mem.TermCount())
	return mem.Generation(Main, time.Unix(100, 0))
}

func TestMemoryIndexScenarioPostings(t *testing.T) {
	gen := buildScenario(t)
	require.NoError(t, gen.Validate())

	freqs := func(term string) [][2]uint32 {
		var out [][2]uint32
		for _, p := range gen.Index[term] {
			out = append(out, [2]uint32{p.DocID, p.Frequency})
		}
		return out
	}
	assert.Equal(t, [][2]uint32{{0, 2}, {2, 1}}, freqs("cat"))
	assert.Equal(t, [][2]uint32{{0, 1}, {1, 1}}, freqs("dog"))
	assert.Equal(t, [][2]uint32{{1, 1}, {2, 2}}, freqs("bird"))
	assert.Equal(t, []string{"bird", "cat", "dog"}, gen.Index.Terms())
}

func TestOffsetsPointIntoPositionTable(t *testing.T) {
	gen := buildScenario(t)

	catA, ok := gen.Index["cat"].Find(0)
	require.True(t, ok)
	offsets, err := gen.Offsets(catA)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, offsets)

	birdC, ok := gen.Index["bird"].Find(2)
	require.True(t, ok)
	offsets, err = gen.Offsets(birdC)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, offsets)

	_, ok = gen.Index["dog"].Find(2)
	assert.False(t, ok)
}

func TestFrequencyIndependentOfCatalogOrder(t *testing.T) {
	texts := map[string]string{"x.txt": "a b a c a", "y.txt": "c c b"}
	counts := func(order []string) map[string]map[string]uint32 {
		mem := NewMemoryIndex()
		for _, p := range order {
			mem.AddDocument(Document{Path: p}, CollectTerms(tokenizer.Terms(texts[p])))
		}
		gen := mem.Generation(Main, time.Time{})
		out := make(map[string]map[string]uint32)
		for term, pl := range gen.Index {
			out[term] = make(map[string]uint32)
			for _, p := range pl {
				out[term][gen.Documents[p.DocID].Path] = p.Frequency
			}
		}
		return out
	}
	assert.Equal(t, counts([]string{"x.txt", "y.txt"}), counts([]string{"y.txt", "x.txt"}))
}

func TestValidateDetectsUnsortedPostings(t *testing.T) {
	gen := &Generation{
		Documents: []Document{{ID: 0, Path: "a"}, {ID: 1, Path: "b"}},
		Index: InvertedIndex{
			"t": {{DocID: 1, Frequency: 1}, {DocID: 0, Frequency: 1}},
		},
	}
	require.Error(t, gen.Validate())
}

func TestErrorPolicyText(t *testing.T) {
	data, err := json.Marshal(EncodingInfo{Name: "utf-8", Confidence: 0.4, ErrorPolicy: Mixed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"utf-8","confidence":0.4,"errors":"mixed"}`, string(data))

	var info EncodingInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, Mixed, info.ErrorPolicy)
	require.Error(t, json.Unmarshal([]byte(`{"errors":"lenient"}`), &info))
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	terms := CollectTerms(tokenizer.Terms("this is a benchmark document with several terms for testing the indexing performance"))
	mem := NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mem.AddDocument(Document{}, terms)
	}
}
