package ranker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

func generation(name string, texts ...string) *index.Generation {
	mem := index.NewMemoryIndex()
	for i, text := range texts {
		mem.AddDocument(index.Document{Path: string(rune('A'+i)) + ".txt"},
			index.CollectTerms(tokenizer.Terms(text)))
	}
	return mem.Generation(name, time.Unix(1, 0).UTC())
}

func merged(t *testing.T, main, aux *index.Generation) *merger.Index {
	t.Helper()
	ix, err := merger.MergeForQuery(main, aux, nil)
	require.NoError(t, err)
	return ix
}

func ids(docs []ScoredDoc) []uint32 {
	out := make([]uint32, len(docs))
	for i, d := range docs {
		out[i] = d.DocID
	}
	return out
}

func TestParseMode(t *testing.T) {
	for _, n := range []int{0, 1, 2, 4} {
		m, err := ParseMode(n)
		require.NoError(t, err)
		assert.Equal(t, Mode(n), m)
	}
	for _, n := range []int{-1, 3, 5, 99} {
		_, err := ParseMode(n)
		assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedRankingMode), "mode %d", n)
	}
	assert.True(t, ModeProximity.NeedsPositions())
	assert.False(t, ModeTFIDF.NeedsPositions())
	assert.False(t, ModeInternal.Scored())
}

func TestRankRejectsUnknownMode(t *testing.T) {
	ix := merged(t, generation(index.Main, "cat"), nil)
	_, err := Rank(ix, []string{"cat"}, []uint32{0}, Mode(3), 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedRankingMode))
}

func TestInternalOrder(t *testing.T) {
	ix := merged(t, generation(index.Main, "cat", "cat", "cat"), nil)
	got, err := Rank(ix, []string{"cat"}, []uint32{2, 0, 1}, ModeInternal, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids(got))
	assert.Equal(t, "A.txt", got[0].Path)

	got, err = Rank(ix, []string{"cat"}, []uint32{2, 0, 1}, ModeInternal, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids(got))
}

func TestTFIDF(t *testing.T) {
	ix := merged(t, generation(index.Main,
		"cat dog cat", "dog bird", "cat bird bird", "dog", "eagle"), nil)

	got, err := Rank(ix, []string{"cat"}, []uint32{0, 2}, ModeTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, []ScoredDoc{
		{DocID: 0, Path: "A.txt", Score: 0.3916},
		{DocID: 2, Path: "C.txt", Score: 0.301},
	}, got)

	got, err = Rank(ix, []string{"cat", "bird"}, []uint32{2}, ModeTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.6927, got[0].Score)

	got, err = Rank(ix, []string{"dog"}, []uint32{3, 1, 0}, ModeTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 3}, ids(got), "ties break by doc id")
	assert.Equal(t, 0.1249, got[0].Score)
}

func TestTFIDFSingleDocumentScoresZero(t *testing.T) {
	ix := merged(t, generation(index.Main, "cat cat"), nil)
	got, err := Rank(ix, []string{"cat"}, []uint32{0}, ModeTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[0].Score)
}

func TestQuasiTFIDFUsesUnmergedCounts(t *testing.T) {
	main := generation(index.Main, "cat dog cat", "dog bird", "cat bird bird")
	aux := index.NewMemoryIndex()
	aux.AddDocument(index.Document{Path: "B.txt"}, index.CollectTerms(tokenizer.Terms("dog dog dog eagle")))
	aux.AddDocument(index.Document{Path: "D.txt"}, index.CollectTerms(tokenizer.Terms("eagle")))
	ix := merged(t, main, aux.Generation(index.Auxiliary, time.Unix(2, 0).UTC()))

	got, err := Rank(ix, []string{"dog"}, []uint32{0, 1}, ModeQuasiTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Path: "B.txt", Score: 0.2002},
		{DocID: 0, Path: "A.txt", Score: 0.1249},
	}, got)

	got, err = Rank(ix, []string{"dog"}, []uint32{0, 1}, ModeTFIDF, 0)
	require.NoError(t, err)
	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Path: "B.txt", Score: 0.2601},
		{DocID: 0, Path: "A.txt", Score: 0.1761},
	}, got)
}

func TestProximity(t *testing.T) {
	main := generation(index.Main,
		"cat a b dog",
		"dog cat",
		"cat x x x x dog x cat dog",
		"bird cat x dog",
		"cat dog bird",
	)
	ix := merged(t, main, nil)

	got, err := Rank(ix, []string{"cat", "dog"}, []uint32{0, 1, 2}, ModeProximity, 0)
	require.NoError(t, err)
	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Path: "B.txt", Score: 1},
		{DocID: 2, Path: "C.txt", Score: 1},
		{DocID: 0, Path: "A.txt", Score: 3},
	}, got)

	got, err = Rank(ix, []string{"cat", "dog", "bird"}, []uint32{3, 4}, ModeProximity, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4, 3}, ids(got))
	assert.Equal(t, 2.0, got[0].Score)
	assert.Equal(t, 5.0, got[1].Score)

	got, err = Rank(ix, []string{"cat"}, []uint32{0, 1}, ModeProximity, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[0].Score)
}

func TestProximityNeedsPositions(t *testing.T) {
	main := generation(index.Main, "cat dog")
	main.Positions = nil
	ix := merged(t, main, nil)
	_, err := Rank(ix, []string{"cat", "dog"}, []uint32{0}, ModeProximity, 0)
	assert.Error(t, err)
}

func TestMinDistance(t *testing.T) {
	assert.Equal(t, uint32(1), minDistance([]uint32{0, 10}, []uint32{9}))
	assert.Equal(t, uint32(4), minDistance([]uint32{7}, []uint32{3}))
}

func BenchmarkProximityFrequentTerms(b *testing.B) {
	text := ""
	for i := 0; i < 500; i++ {
		text += "cat x dog "
	}
	ix, _ := merger.MergeForQuery(generation(index.Main, text), nil, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Rank(ix, []string{"cat", "dog"}, []uint32{0}, ModeProximity, 0)
	}
}
