package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	failures int
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishEncodesJSON(t *testing.T) {
	w := &recordingWriter{failures: 1}
	p := NewProducerWithWriter(w, "index.complete")

	err := p.Publish(context.Background(), Event{
		Key:   "main",
		Value: map[string]int{"documents": 3},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "main", string(w.messages[0].Key))
	assert.JSONEq(t, `{"documents":3}`, string(w.messages[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := NewProducerWithWriter(&recordingWriter{}, "index.complete")
	err := p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	require.Error(t, err)
}
