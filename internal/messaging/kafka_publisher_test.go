package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() models.BetEvent {
	amount := decimal.RequireFromString("796.95")
	return models.BetEvent{
		Type:      models.EventBetCashedOut,
		BetID:     "bet-1",
		AccountID: "acct-1",
		Status:    models.BetCashedOut,
		Stake:     decimal.RequireFromString("1000"),
		Amount:    &amount,
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher(KafkaPublisherConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "bet_events",
	}, zerolog.Nop())

	writer, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "bet_events", writer.Topic)
	assert.IsType(t, &kafka.Hash{}, writer.Balancer)
	assert.NoError(t, p.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "bet_events", zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "bet-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "bet.cashed_out", string(msg.Headers[0].Value))

	var decoded models.BetEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, models.EventBetCashedOut, decoded.Type)
	assert.True(t, decoded.Amount.Equal(decimal.RequireFromString("796.95")))
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(w, "bet_events", zerolog.Nop())

	err := p.Publish(context.Background(), testEvent())
	assert.ErrorContains(t, err, "bet_events")
	assert.ErrorIs(t, err, w.err)
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "bet_events", zerolog.Nop())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
