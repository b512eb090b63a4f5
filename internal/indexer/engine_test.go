package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tombstone"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingNotifier struct {
	events []GenerationCommitted
}

func (n *recordingNotifier) GenerationCommitted(_ context.Context, ev GenerationCommitted) error {
	n.events = append(n.events, ev)
	return nil
}

type recordingJournal struct {
	runs []journal.Run
}

func (j *recordingJournal) Record(_ context.Context, run journal.Run) error {
	j.runs = append(j.runs, run)
	return nil
}

type fixedDetector struct{}

func (fixedDetector) Detect([]byte) (string, float64, error) { return "utf-8", 0.99, nil }

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func writeDoc(t *testing.T, root, rel, text string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func scenarioRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDoc(t, root, "A.txt", "cat dog cat", baseTime)
	writeDoc(t, root, "B.txt", "dog bird", baseTime)
	writeDoc(t, root, "C.txt", "cat bird bird", baseTime)
	return root
}

func newTestEngine(t *testing.T, root string, cfg config.IndexConfig, opts ...Option) *Engine {
	t.Helper()
	clock := &stepClock{t: baseTime.Add(24 * time.Hour)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	e, err := NewEngine(cfg, root, nil, opts...)
	require.NoError(t, err)
	return e
}

func defaultIndexConfig() config.IndexConfig {
	cfg := config.Default().Index
	cfg.Workers = 2
	return cfg
}

func postings(gen *index.Generation, term string) [][2]uint32 {
	var out [][2]uint32
	for _, p := range gen.Index[term] {
		out = append(out, [2]uint32{p.DocID, p.Frequency})
	}
	return out
}

func TestBuildScenario(t *testing.T) {
	root := scenarioRoot(t)
	e := newTestEngine(t, root, defaultIndexConfig())

	report, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, index.Main, report.Generation)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Terms)
	assert.Equal(t, int64(8), report.Tokens)
	assert.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)

	gen, err := e.Store().Load(index.Main)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint32{{0, 2}, {2, 1}}, postings(gen, "cat"))
	assert.Equal(t, [][2]uint32{{0, 1}, {1, 1}}, postings(gen, "dog"))
	assert.Equal(t, [][2]uint32{{1, 1}, {2, 2}}, postings(gen, "bird"))
	assert.Equal(t, "ascii", gen.Documents[0].Encoding.Name)
	assert.True(t, baseTime.Equal(gen.Documents[0].ModifiedAt))

	require.NoError(t, e.Store().LoadPositions(gen))
	require.NoError(t, gen.Validate())
}

func TestBuildExcludesByInstruction(t *testing.T) {
	root := scenarioRoot(t)
	insPath := filepath.Join(t.TempDir(), "instructions")
	require.NoError(t, os.WriteFile(insPath, []byte("@x A.txt\n"), 0o644))
	cfg := defaultIndexConfig()
	cfg.InstructionsFile = insPath
	e := newTestEngine(t, root, cfg)

	report, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.txt"}, report.Excluded)

	gen, err := e.Store().Load(index.Main)
	require.NoError(t, err)
	require.Len(t, gen.Documents, 2)
	assert.Equal(t, "B.txt", gen.Documents[0].Path)
	assert.Equal(t, [][2]uint32{{1, 1}}, postings(gen, "cat"))
}

type extraLister struct {
	catalog.Lister
	extra catalog.File
}

func (l extraLister) List(root, suffix string) ([]catalog.File, error) {
	files, err := l.Lister.List(root, suffix)
	return append(files, l.extra), err
}

func TestBuildIsolatesDocumentFailures(t *testing.T) {
	root := scenarioRoot(t)
	writeDoc(t, root, "AA.txt", "broken \xff bytes", baseTime)
	e := newTestEngine(t, root, defaultIndexConfig(),
		WithDetector(fixedDetector{}),
		WithLister(extraLister{Lister: catalog.WalkLister{}, extra: catalog.File{Path: "B0.txt", ModifiedAt: baseTime}}),
	)

	report, err := e.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures, 2)
	reasons := map[string]string{}
	for _, f := range report.Failures {
		reasons[f.Path] = f.Reason
	}
	assert.Equal(t, map[string]string{"AA.txt": ReasonDecode, "B0.txt": ReasonIO}, reasons)
	for _, f := range report.Failures {
		if f.Reason == ReasonIO {
			assert.True(t, apperrors.Is(f.Err, apperrors.ErrIO))
		} else {
			assert.True(t, apperrors.Is(f.Err, apperrors.ErrDecode))
		}
	}

	gen, err := e.Store().Load(index.Main)
	require.NoError(t, err)
	require.Len(t, gen.Documents, 3)
	for i, d := range gen.Documents {
		assert.Equal(t, uint32(i), d.ID)
	}
	assert.Equal(t, [][2]uint32{{0, 2}, {2, 1}}, postings(gen, "cat"))
}

func TestBuildForcedEncoding(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "bom.txt", "\xef\xbb\xbfolá mundo", baseTime)
	insPath := filepath.Join(t.TempDir(), "instructions")
	require.NoError(t, os.WriteFile(insPath, []byte("bom.txt @u\n"), 0o644))
	cfg := defaultIndexConfig()
	cfg.InstructionsFile = insPath
	e := newTestEngine(t, root, cfg)

	_, err := e.Build(context.Background())
	require.NoError(t, err)
	gen, err := e.Store().Load(index.Main)
	require.NoError(t, err)
	assert.Equal(t, "utf-8-sig", gen.Documents[0].Encoding.Name)
	assert.Equal(t, index.Strict, gen.Documents[0].Encoding.ErrorPolicy)
	assert.Contains(t, gen.Index, "olá")
}

func TestUpdateRequiresPrimary(t *testing.T) {
	e := newTestEngine(t, scenarioRoot(t), defaultIndexConfig())
	_, err := e.Update(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrNoGeneration))
}

func TestUpdateBuildsAuxiliaryAndTombstones(t *testing.T) {
	root := scenarioRoot(t)
	notifier := &recordingNotifier{}
	j := &recordingJournal{}
	e := newTestEngine(t, root, defaultIndexConfig(), WithNotifier(notifier), WithJournal(j))
	ctx := context.Background()

	_, err := e.Build(ctx)
	require.NoError(t, err)
	mainStamp, _, err := e.Store().Stamp(index.Main)
	require.NoError(t, err)

	writeDoc(t, root, "B.txt", "dog dog dog bird", baseTime.Add(time.Hour))
	writeDoc(t, root, "D.txt", "eagle", baseTime.Add(time.Hour))
	require.NoError(t, os.Remove(filepath.Join(root, "C.txt")))

	report, err := e.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, Delta{New: []string{"D.txt"}, Changed: []string{"B.txt"}, Removed: []string{"C.txt"}}, report.Delta)
	assert.Equal(t, []string{"C.txt"}, report.Tombstoned)
	require.NotNil(t, report.Build)
	assert.Equal(t, 2, report.Build.Documents)

	aux, err := e.Store().Load(index.Auxiliary)
	require.NoError(t, err)
	require.Len(t, aux.Documents, 2)
	assert.Equal(t, "B.txt", aux.Documents[0].Path)
	assert.Equal(t, "D.txt", aux.Documents[1].Path)
	assert.Equal(t, [][2]uint32{{0, 3}}, postings(aux, "dog"))

	tombs, err := tombstone.Read(e.TombstonePath())
	require.NoError(t, err)
	assert.Equal(t, []string{"C.txt"}, tombs)

	stamp, _, err := e.Store().Stamp(index.Main)
	require.NoError(t, err)
	assert.True(t, mainStamp.Equal(stamp), "primary generation must not change")

	require.Len(t, notifier.events, 2)
	assert.Equal(t, index.Auxiliary, notifier.events[1].Generation)
	assert.Equal(t, []string{"C.txt"}, notifier.events[1].Removed)
	require.Len(t, j.runs, 2)
	assert.Equal(t, journal.KindUpdate, j.runs[1].Kind)
	assert.Equal(t, []string{"B.txt"}, j.runs[1].Detail.Changed)
}

func TestUpdateTwiceIsIdempotent(t *testing.T) {
	root := scenarioRoot(t)
	e := newTestEngine(t, root, defaultIndexConfig())
	ctx := context.Background()
	_, err := e.Build(ctx)
	require.NoError(t, err)

	writeDoc(t, root, "B.txt", "dog bird bird", baseTime.Add(time.Hour))
	require.NoError(t, os.Remove(filepath.Join(root, "A.txt")))
	_, err = e.Update(ctx)
	require.NoError(t, err)

	auxStamp, _, err := e.Store().Stamp(index.Auxiliary)
	require.NoError(t, err)
	before, err := os.ReadFile(e.TombstonePath())
	require.NoError(t, err)

	report, err := e.Update(ctx)
	require.NoError(t, err)
	assert.True(t, report.Delta.Empty())
	assert.True(t, report.NoChange())

	after, err := os.ReadFile(e.TombstonePath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	stamp, _, err := e.Store().Stamp(index.Auxiliary)
	require.NoError(t, err)
	assert.True(t, auxStamp.Equal(stamp))
}

func TestUpdateRecreatedPathJoinsAuxiliary(t *testing.T) {
	root := scenarioRoot(t)
	e := newTestEngine(t, root, defaultIndexConfig())
	ctx := context.Background()
	_, err := e.Build(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "C.txt")))
	_, err = e.Update(ctx)
	require.NoError(t, err)

	writeDoc(t, root, "C.txt", "cat bird bird", baseTime)
	report, err := e.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.txt"}, report.Delta.New)
	assert.Empty(t, report.Tombstoned)

	aux, err := e.Store().Load(index.Auxiliary)
	require.NoError(t, err)
	require.Len(t, aux.Documents, 1)
	assert.Equal(t, "C.txt", aux.Documents[0].Path)
}

func TestBuildClearsIncrementalState(t *testing.T) {
	root := scenarioRoot(t)
	e := newTestEngine(t, root, defaultIndexConfig())
	ctx := context.Background()
	_, err := e.Build(ctx)
	require.NoError(t, err)

	writeDoc(t, root, "D.txt", "eagle", baseTime.Add(time.Hour))
	require.NoError(t, os.Remove(filepath.Join(root, "A.txt")))
	_, err = e.Update(ctx)
	require.NoError(t, err)
	require.True(t, e.Store().Exists(index.Auxiliary))

	_, err = e.Build(ctx)
	require.NoError(t, err)
	assert.False(t, e.Store().Exists(index.Auxiliary))
	tombs, err := tombstone.Read(e.TombstonePath())
	require.NoError(t, err)
	assert.Empty(t, tombs)

	report, err := e.Update(ctx)
	require.NoError(t, err)
	assert.True(t, report.NoChange())
}

func TestComputeDelta(t *testing.T) {
	prev := Snapshot{"a": baseTime, "b": baseTime, "c": baseTime}
	files := []catalog.File{
		{Path: "a", ModifiedAt: baseTime},
		{Path: "b", ModifiedAt: baseTime.Add(time.Nanosecond)},
		{Path: "d", ModifiedAt: baseTime},
	}
	d := ComputeDelta(prev, files)
	assert.Equal(t, Delta{New: []string{"d"}, Changed: []string{"b"}, Removed: []string{"c"}}, d)
	assert.True(t, ComputeDelta(Snapshot{"a": baseTime}, files[:1]).Empty())
}

func TestEffectiveSnapshot(t *testing.T) {
	main := &index.Generation{Documents: []index.Document{
		{ID: 0, Path: "a", ModifiedAt: baseTime},
		{ID: 1, Path: "b", ModifiedAt: baseTime},
	}}
	aux := &index.Generation{Documents: []index.Document{
		{ID: 0, Path: "b", ModifiedAt: baseTime.Add(time.Hour)},
		{ID: 1, Path: "a", ModifiedAt: baseTime.Add(2 * time.Hour)},
	}}
	s := EffectiveSnapshot(main, aux, []string{"a"})
	assert.True(t, baseTime.Add(time.Hour).Equal(s["b"]))
	assert.True(t, baseTime.Add(2*time.Hour).Equal(s["a"]), "auxiliary wins over tombstone")

	s = EffectiveSnapshot(main, nil, []string{"a"})
	assert.NotContains(t, s, "a")
}
