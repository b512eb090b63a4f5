package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/database"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.JournalConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(ctx, db)
	require.NoError(t, err)
	return s
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := Run{
		ID: uuid.NewString(), Kind: KindBuild, Generation: "main", Status: StatusOK,
		Documents: 3, Terms: 3, Tokens: 8,
		Detail: Detail{Excluded: []string{"drafts/x.txt"}},
		StartedAt: base, FinishedAt: base.Add(time.Second),
	}
	second := Run{
		ID: uuid.NewString(), Kind: KindUpdate, Generation: "auxiliary", Status: StatusOK,
		Documents: 1, Terms: 2, Tokens: 4, Failures: 1,
		Detail: Detail{Changed: []string{"B.txt"}, FailedPaths: []string{"bad.txt"}},
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second),
	}
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, []string{"B.txt"}, runs[0].Detail.Changed)
	assert.Equal(t, 1, runs[0].Failures)
	assert.True(t, first.StartedAt.Equal(runs[1].StartedAt))

	runs, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	id := uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, s.Record(ctx, Run{ID: id, Kind: KindBuild, Generation: "main", Status: StatusFailed,
		Detail: Detail{ErrorMessage: "boom"}, StartedAt: now, FinishedAt: now}))

	run, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "boom", run.Detail.ErrorMessage)

	missing, err := s.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	run := Run{ID: "fixed", Kind: KindBuild, Generation: "main", Status: StatusOK, StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, s.Record(ctx, run))
	assert.Error(t, s.Record(ctx, run))
}
