package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/smb-go/internal/config"
	"github.com/aptpod/smb-go/multichannel"
	"github.com/aptpod/smb-go/session"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("パス未指定の場合はデフォルト値", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, multichannel.DefaultConfig(), *cfg)
	})
	t.Run("存在しないファイルはデフォルト値", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, multichannel.DefaultConfig(), *cfg)
	})
	t.Run("YAMLファイルの値で上書き", func(t *testing.T) {
		path := writeFile(t, "smbmc.yaml", `
max_channels: 8
strategy: round-robin
health_check_interval: 5s
retry_base_interval: 500ms
binding_policy: required
scoring:
  primary_bonus: 15
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.MaxChannels)
		assert.Equal(t, multichannel.StrategyRoundRobin, cfg.Strategy)
		assert.Equal(t, 5*time.Second, cfg.HealthCheckInterval)
		assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseInterval)
		assert.Equal(t, session.BindingRequired, cfg.BindingPolicy)
		assert.Equal(t, int64(15), cfg.Scoring.PrimaryBonus)
		// untouched keys keep their defaults
		assert.Equal(t, multichannel.DefaultConfig().IdleTimeout, cfg.IdleTimeout)
		assert.Equal(t, multichannel.DefaultScoreWeights.Base, cfg.Scoring.Base)
	})
	t.Run("環境変数はファイルより優先", func(t *testing.T) {
		path := writeFile(t, "smbmc.yaml", "max_channels: 8\n")
		t.Setenv("SMBMC_MAX_CHANNELS", "2")
		t.Setenv("SMBMC_ENABLED", "false")
		t.Setenv("SMBMC_STRATEGY", "least_loaded")
		t.Setenv("SMBMC_SCORING_BUSY_PENALTY", "30")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.MaxChannels)
		assert.False(t, cfg.Enabled)
		assert.Equal(t, multichannel.StrategyLeastLoaded, cfg.Strategy)
		assert.Equal(t, int64(30), cfg.Scoring.BusyPenalty)
	})
	t.Run("不正な選択方式", func(t *testing.T) {
		path := writeFile(t, "smbmc.yaml", "strategy: random\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
	t.Run("検証エラー", func(t *testing.T) {
		path := writeFile(t, "smbmc.yaml", "max_channels: 0\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "validation")
	})
	t.Run("壊れたファイル", func(t *testing.T) {
		path := writeFile(t, "smbmc.yaml", "max_channels: [\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestSettings(t *testing.T) {
	settings := Settings(multichannel.DefaultConfig())
	keys := Keys()

	require.Len(t, keys, len(settings))
	assert.IsIncreasing(t, keys)
	assert.Equal(t, "adaptive", settings["strategy"])
	assert.Equal(t, "preferred", settings["binding_policy"])
	assert.Equal(t, "10s", settings["health_check_interval"])
	assert.Contains(t, keys, "scoring.error_penalty_low")
}
