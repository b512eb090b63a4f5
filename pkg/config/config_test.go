package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".txt", cfg.Index.Suffix)
	assert.Equal(t, int64(100000), cfg.Index.SampleBytes)
	assert.Equal(t, 0.63, cfg.Index.ReplaceBelowConfidence)
	assert.Equal(t, 0.4, cfg.Index.LargeFileConfidence)
	assert.True(t, cfg.Index.DedupTombstones)
	assert.Equal(t, "/corpus", cfg.Index.ResolveDataDir("/corpus"))
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mir.yaml")
	data := []byte(`
index:
  dataDir: /var/lib/mir
  workers: 4
query:
  defaultMode: 1
watch:
  debounce: 2s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("MIR_LOGGING_LEVEL", "debug")
	t.Setenv("MIR_JOURNAL_DSN", "file:runs.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mir", cfg.Index.ResolveDataDir("/corpus"))
	assert.Equal(t, 4, cfg.Index.Workers)
	assert.Equal(t, 1, cfg.Query.DefaultMode)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mir.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  replaceBelowConfidence: 1.5\n"), 0o644))
	_, err := Load(path)
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}
