package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
storage:
  database: /tmp/arena.db
round1:
  bingo_bonus: 30
  score_mode: additive
round2:
  win_threshold: 80
rate_limit:
  round2_sync:
    limit: 3
    window: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "/tmp/arena.db", cfg.Storage.Database)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 30, cfg.Round1.BingoBonus)
	assert.Equal(t, ScoreModeAdditive, cfg.Round1.ScoreMode)
	assert.Equal(t, 10, cfg.Round1.PointsPerProblem)
	assert.Equal(t, 80, cfg.Round2.WinThreshold)
	assert.Equal(t, 50, cfg.Round2.InitialScore)
	assert.Equal(t, 3, cfg.RateLimit.Round2Sync.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Round2Sync.Window)
	assert.Equal(t, 5, cfg.RateLimit.Round1Sync.Limit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CFBINGO_JWT_SECRET", "from-env")
	t.Setenv("CFBINGO_DATABASE", "env.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	assert.Equal(t, "env.db", cfg.Storage.Database)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
