package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/pipeline"
	"regime-trading-bot/internal/vault"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.RedisConfig.Enabled = false
	cfg.DatabaseConfig.Enabled = false
	cfg.CalendarConfig.Enabled = false
	cfg.ServerConfig.Enabled = false
	cfg.BinanceConfig.MockMode = true
	return cfg
}

func TestBuildOfflineRunsATick(t *testing.T) {
	cfg := offlineConfig(t)
	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Scheduler.RunNow(context.Background(), pipeline.TriggerCLI)
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	require.Len(t, summary.Decisions, len(cfg.PipelineConfig.Symbols))
	for _, d := range summary.Decisions {
		assert.NotEmpty(t, d.Outcome)
		assert.NotEmpty(t, d.Reason)
		assert.NotEqual(t, pipeline.OutcomeError, d.Outcome, d.Detail)
	}
}

func TestBuildWithoutCredentialsIsFatal(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.BinanceConfig.MockMode = false
	cfg.BinanceConfig.APIKey = ""
	cfg.BinanceConfig.SecretKey = ""

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, vault.ErrMissingCredentials)
}

func TestConfigMapping(t *testing.T) {
	s := scalpConfig(config.ScalpConfig{MinScore: 10, StopATRMult: 1, TargetATRMult: 7})
	assert.Equal(t, 10.0, s.MinScore)
	assert.Equal(t, 7.0, s.TargetATRMult)
	assert.NotZero(t, s.ATRPeriod)

	assert.True(t, regimeConfig(config.RegimeConfig{HurstCorrection: true}).HurstCorrection)
	assert.Equal(t, 0.55, regimeConfig(config.RegimeConfig{}).TrendingAbove)

	w := swingConfig(config.SwingConfig{ADXThreshold: 30, StopATRMult: 2, RewardRatio: 3})
	assert.Equal(t, 30.0, w.ADXThreshold)
	assert.Equal(t, 200, w.SlowSMAPeriod)
}
