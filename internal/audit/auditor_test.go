package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		approved bool
		comment  string
		err      bool
	}{
		{"json approve", `{"verdict":"APPROVE","comment":"clean setup"}`, true, "clean setup", false},
		{"json reject in prose", "Sure! {\"verdict\": \"reject\", \"comment\": \"news risk\"} hope that helps", false, "news risk", false},
		{"json bool", `{"approved": false, "reason": "too wide"}`, false, "too wide", false},
		{"bare approve", "APPROVE", true, "APPROVE", false},
		{"lowercase rejected", "rejected - stop too tight", false, "rejected - stop too tight", false},
		{"both words", "I would approve but also reject", false, "", true},
		{"no verdict", "maybe later", false, "", true},
		{"json without verdict falls back to text", `{"note":"x"} REJECT`, false, `{"note":"x"} REJECT`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseVerdict(tc.in)
			if tc.err {
				assert.ErrorIs(t, err, ErrUnparsable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.approved, v.Approved)
			assert.Equal(t, tc.comment, v.Comment)
		})
	}
}

type stubLLM struct {
	out string
	err error
}

func (s stubLLM) Complete(context.Context, string, string) (string, error) { return s.out, s.err }

func TestAuditorPropagatesErrors(t *testing.T) {
	a := New(stubLLM{err: errors.New("timeout")}, zerolog.Nop())
	_, err := a.Audit(context.Background(), "long EURUSD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnparsable)

	a = New(stubLLM{out: "no idea"}, zerolog.Nop())
	_, err = a.Audit(context.Background(), "long EURUSD")
	assert.ErrorIs(t, err, ErrUnparsable)

	a = New(stubLLM{out: `{"verdict":"APPROVE"}`}, zerolog.Nop())
	v, err := a.Audit(context.Background(), "long EURUSD")
	require.NoError(t, err)
	assert.True(t, v.Approved)
}
