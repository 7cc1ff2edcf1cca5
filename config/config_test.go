package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.PipelineConfig.Symbols)
	assert.Equal(t, 75.0, cfg.RiskConfig.MinConfidence)
	assert.Equal(t, 1.0, cfg.RiskConfig.MaxRiskPercent)
	assert.Equal(t, 7.0, cfg.ScalpConfig.TargetATRMult)
	assert.Equal(t, 5*time.Minute, cfg.PipelineConfig.TickInterval)
	assert.Equal(t, 60*time.Second, cfg.CircuitConfig.Timeout)
	assert.True(t, cfg.RiskConfig.AuditVeto)
	assert.False(t, cfg.RegimeConfig.HurstCorrection)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
pipeline:
  symbols: ["EURUSD"]
  strategy: swing
  tick_interval: 1m
risk:
  min_confidence: 80
circuit:
  failure_threshold: 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD"}, cfg.PipelineConfig.Symbols)
	assert.Equal(t, "swing", cfg.PipelineConfig.Strategy)
	assert.Equal(t, time.Minute, cfg.PipelineConfig.TickInterval)
	assert.Equal(t, 80.0, cfg.RiskConfig.MinConfidence)
	assert.Equal(t, 3, cfg.CircuitConfig.FailureThreshold)
	// untouched sections still get defaults
	assert.Equal(t, 250, cfg.PipelineConfig.CandleLimit)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("PIPELINE_SYMBOLS", "solusdt, xrpusdt")
	t.Setenv("RISK_MIN_CONFIDENCE", "90")
	t.Setenv("CHAOS_TIER", "high")
	t.Setenv("CIRCUIT_TIMEOUT", "2m")
	t.Setenv("REGIME_HURST_CORRECTION", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, cfg.PipelineConfig.Symbols)
	assert.Equal(t, 90.0, cfg.RiskConfig.MinConfidence)
	assert.Equal(t, "HIGH", cfg.ChaosConfig.Tier)
	assert.Equal(t, 2*time.Minute, cfg.CircuitConfig.Timeout)
	assert.True(t, cfg.RegimeConfig.HurstCorrection)
}

func TestValidateRejectsRiskCapAboveOnePercent(t *testing.T) {
	t.Setenv("RISK_MAX_PERCENT", "2.5")
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}

func TestValidateRejectsLongExternalTimeout(t *testing.T) {
	t.Setenv("PIPELINE_EXTERNAL_TIMEOUT", "30s")
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external_timeout")
}

func TestValidateRequiresJWTSecretWhenAuthEnabled(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}

func TestGenerateSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, GenerateSampleConfig(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.BinanceConfig.MockMode)
}
