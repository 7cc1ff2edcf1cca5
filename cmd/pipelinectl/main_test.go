package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/pipeline"
	"regime-trading-bot/internal/risk"
)

const offlineYAML = `
redis:
  enabled: false
database:
  enabled: false
calendar:
  enabled: false
server:
  enabled: false
binance:
  mock_mode: true
pipeline:
  symbols: ["BTCUSDT"]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(offlineYAML), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTickPrintsSummary(t *testing.T) {
	out, err := run(t, "tick", "--config", writeConfig(t))
	require.NoError(t, err)

	var summary pipeline.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, pipeline.TriggerCLI, summary.Trigger)
	require.Len(t, summary.Decisions, 1)
	assert.Equal(t, "BTCUSDT", summary.Decisions[0].Symbol)
}

func TestKillSwitchOnRequiresReason(t *testing.T) {
	_, err := run(t, "killswitch", "on", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--reason")
}

func TestKillSwitchOnPrintsState(t *testing.T) {
	out, err := run(t, "killswitch", "on", "--reason", "fomc", "--config", writeConfig(t))
	require.NoError(t, err)

	var state risk.KillState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.True(t, state.Engaged)
	assert.Equal(t, "fomc", state.Reason)
}

func TestKillSwitchRejectsUnknownAction(t *testing.T) {
	_, err := run(t, "killswitch", "maybe", "--config", writeConfig(t))
	assert.Error(t, err)
}

func TestCloseTradeValidatesExitPrice(t *testing.T) {
	_, err := run(t, "close-trade", "abc", "-5", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exit price")
}

func TestCloseTradeUnknownID(t *testing.T) {
	_, err := run(t, "close-trade", "missing", "101.5", "--config", writeConfig(t))
	assert.Error(t, err)
}

func TestCircuitsListsEmptyRegistry(t *testing.T) {
	out, err := run(t, "circuits", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestSampleConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	out, err := run(t, "sample-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)
}

func TestHashPasswordVerifies(t *testing.T) {
	out, err := run(t, "hash-password", "hunter2", "--cost", "4")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword("hunter2", strings.TrimSpace(out)))
}

func TestReleaseLockUppercasesSymbol(t *testing.T) {
	out, err := run(t, "release-lock", "ethusdt", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "released ETHUSDT\n", out)
}
