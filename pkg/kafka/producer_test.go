package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func headerValue(msg kafka.Message, key string) string {
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

// ---------------------------------------------------------------------------
// Event
// ---------------------------------------------------------------------------

func TestTopic(t *testing.T) {
	assert.Equal(t, "mess.rating.submitted", Topic("rating", "submitted"))
}

func TestNewEvent_Fields(t *testing.T) {
	payload := map[string]any{"dishName": "Idli", "rating": 8}
	event, err := NewEvent("rating.submitted", "Idli|breakfast|2025-01-07", "dish", "mess-rating", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, "dish", event.AggregateType)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got map[string]any
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, "Idli", got["dishName"])
}

func TestNewEvent_UnserializablePayload(t *testing.T) {
	_, err := NewEvent("x", "a", "t", "s", make(chan int))
	require.Error(t, err)
}

func TestEvent_CorrelationIDSerialized(t *testing.T) {
	event, err := NewEvent("user.signed_in", "abcd", "user", "mess-rating", nil)
	require.NoError(t, err)
	assert.Same(t, event, event.WithCorrelationID("corr-1"))

	raw, err := event.Marshal()
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "corr-1", back["correlation_id"])
}

// ---------------------------------------------------------------------------
// Producer
// ---------------------------------------------------------------------------

func TestProducer_PublishBuildsMessage(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := new(mockWriter)
	var sent kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message)[0] }).
		Return(nil)

	p := newProducer(w, []string{"localhost:9092"}, newTestLogger())
	event, err := NewEvent("rating.submitted", "Idli|breakfast|2025-01-07", "dish", "mess-rating", map[string]int{"rating": 9})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(ctx, Topic("rating", "submitted"), event))

	assert.Equal(t, "mess.rating.submitted", sent.Topic)
	assert.Equal(t, "Idli|breakfast|2025-01-07", string(sent.Key))
	assert.Equal(t, "rating.submitted", headerValue(sent, "event_type"))
	assert.Equal(t, "corr-9", headerValue(sent, "correlation_id"))
	assert.Contains(t, headerValue(sent, "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	var env Event
	require.NoError(t, json.Unmarshal(sent.Value, &env))
	assert.Equal(t, event.EventID, env.EventID)
	w.AssertExpectations(t)
}

func TestProducer_PublishWriteError(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	p := newProducer(w, nil, newTestLogger())
	event, err := NewEvent("user.signed_in", "abcd", "user", "mess-rating", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "mess.user.signed_in", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to mess.user.signed_in")
}

func TestProducer_Close(t *testing.T) {
	w := new(mockWriter)
	w.On("Close").Return(nil)

	require.NoError(t, newProducer(w, nil, newTestLogger()).Close())
	w.AssertExpectations(t)
}

func TestProducer_PingNoBrokers(t *testing.T) {
	err := newProducer(new(mockWriter), nil, newTestLogger()).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestProducer_PingUnreachable(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = newProducer(new(mockWriter), []string{addr}, newTestLogger()).Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}

// ---------------------------------------------------------------------------
// headerCarrier
// ---------------------------------------------------------------------------

func TestHeaderCarrier_SetOverwritesAndKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "a", Value: []byte("1")}}
	c := headerCarrier{headers: &headers}

	c.Set("a", "2")
	c.Set("b", "3")

	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, "3", c.Get("b"))
	assert.Empty(t, c.Get("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
