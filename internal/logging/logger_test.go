package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestWithRunAttachesRunID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx, l := WithRun(context.Background(), base, "schedule")
	require.NotEmpty(t, RunID(ctx))

	fl := FromContext(ctx, zerolog.Nop())
	fl.Info().Msg("hello")
	l.Info().Msg("again")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, RunID(ctx), entry["run_id"])
		assert.Equal(t, "schedule", entry["trigger"])
	}
}

func TestFromContextFallsBack(t *testing.T) {
	var buf bytes.Buffer
	def := zerolog.New(&buf)
	fl := FromContext(context.Background(), def)
	fl.Info().Msg("x")
	assert.Contains(t, buf.String(), `"message":"x"`)
}
