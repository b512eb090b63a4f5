package segment

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

func sampleGeneration(name string) *index.Generation {
	mem := index.NewMemoryIndex()
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	for _, d := range []struct{ path, text string }{
		{"A.txt", "cat dog cat"},
		{"sub/B.txt", "dog bird"},
		{"C.txt", "cat bird bird"},
	} {
		mem.AddDocument(index.Document{
			Path:       d.path,
			Encoding:   index.EncodingInfo{Name: "ascii", Confidence: 1, ErrorPolicy: index.Strict},
			SizeBytes:  uint64(len(d.text)),
			ModifiedAt: mtime,
		}, index.CollectTerms(tokenizer.Terms(d.text)))
	}
	return mem.Generation(name, time.Date(2024, 3, 2, 8, 30, 0, 456789, time.UTC))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	gen := sampleGeneration(index.Main)
	require.NoError(t, s.Save(gen))

	got, err := s.Load(index.Main)
	require.NoError(t, err)
	assert.False(t, got.PositionsLoaded())
	assert.Equal(t, gen.FormatVersion, got.FormatVersion)
	assert.True(t, gen.BuiltAt.Equal(got.BuiltAt))
	assert.Equal(t, gen.Documents, got.Documents)
	assert.Equal(t, gen.Index, got.Index)

	require.NoError(t, s.LoadPositions(got))
	assert.Equal(t, gen.Positions, got.Positions)
	require.NoError(t, got.Validate())

	ts, ok, err := s.Stamp(index.Main)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, gen.BuiltAt.Equal(ts))
}

func TestEmptyGenerationRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	gen := index.NewMemoryIndex().Generation(index.Auxiliary, time.Unix(5, 0).UTC())
	require.NoError(t, s.Save(gen))

	got, err := s.Load(index.Auxiliary)
	require.NoError(t, err)
	assert.Empty(t, got.Documents)
	assert.Empty(t, got.Index)
	assert.True(t, got.PositionsLoaded())
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load(index.Main)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoGeneration))

	gen, err := s.LoadOptional(index.Auxiliary)
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, ok, err := s.Stamp(index.Main)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Exists(index.Main))
}

func TestLoadRejectsOtherFormatVersion(t *testing.T) {
	s := NewStore(t.TempDir())
	gen := sampleGeneration(index.Main)
	gen.FormatVersion = "MIR 1.0"
	require.NoError(t, s.Save(gen))

	_, err := s.Load(index.Main)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleFormat))
}

func TestLoadRejectsCorruption(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(sampleGeneration(index.Main)))

	path := s.GenerationPath(index.Main)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+6] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = s.Load(index.Main)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleFormat))

	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	_, err = s.Load(index.Main)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleFormat))
}

func TestPositionsMustMatchBuild(t *testing.T) {
	s := NewStore(t.TempDir())
	gen := sampleGeneration(index.Main)
	require.NoError(t, s.Save(gen))

	_, err := s.Positions(index.Main, gen.BuiltAt.Add(time.Second))
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompatibleFormat))
}

func TestSaveReplacesAtomically(t *testing.T) {
	s := NewStore(t.TempDir())
	first := sampleGeneration(index.Main)
	require.NoError(t, s.Save(first))

	second := index.NewMemoryIndex()
	second.AddDocument(index.Document{Path: "Z.txt", ModifiedAt: time.Unix(1, 0).UTC()},
		index.CollectTerms(tokenizer.Terms("zebra")))
	next := second.Generation(index.Main, time.Unix(10, 0).UTC())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen, err := s.Load(index.Main)
			if assert.NoError(t, err) {
				assert.Contains(t, []int{1, 3}, len(gen.Documents))
			}
		}()
	}
	require.NoError(t, s.Save(next))
	wg.Wait()

	got, err := s.Load(index.Main)
	require.NoError(t, err)
	assert.Len(t, got.Documents, 1)
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(sampleGeneration(index.Auxiliary)))
	assert.True(t, s.Exists(index.Auxiliary))
	require.NoError(t, s.Remove(index.Auxiliary))
	require.NoError(t, s.Remove(index.Auxiliary))
	assert.False(t, s.Exists(index.Auxiliary))
}

func TestSaveRejectsInvalidGeneration(t *testing.T) {
	s := NewStore(t.TempDir())
	gen := sampleGeneration(index.Main)
	gen.Index["cat"] = index.PostingList{gen.Index["cat"][1], gen.Index["cat"][0]}
	assert.Error(t, s.Save(gen))
	assert.False(t, s.Exists(index.Main))
}
