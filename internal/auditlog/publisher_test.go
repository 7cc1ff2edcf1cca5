package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/config"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "decisions", zerolog.Nop())

	err := k.Publish(context.Background(), "EURUSD", map[string]string{"outcome": "admitted"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "EURUSD", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"outcome":"admitted"}`, string(w.msgs[0].Value))

	w.err = errors.New("leader not available")
	assert.Error(t, k.Publish(context.Background(), "EURUSD", 1))
}

func TestNewRespectsEnabledFlag(t *testing.T) {
	p, err := New(config.KafkaConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)

	_, err = New(config.KafkaConfig{Enabled: true, Topic: "t"}, zerolog.Nop())
	assert.Error(t, err, "brokers required")
}

func TestMemoryCapturesRecords(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Publish(context.Background(), "a", 1))
	require.NoError(t, m.Publish(context.Background(), "b", "x"))
	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[1].Key)
	assert.JSONEq(t, `"x"`, string(snap[1].Value))
}
