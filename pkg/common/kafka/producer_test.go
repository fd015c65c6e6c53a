package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishEventEnvelope(t *testing.T) {
	writer := &recordingWriter{}
	p := &Producer{writer: writer, topic: "providerhub.events"}

	err := p.PublishEvent(context.Background(), models.EventLeadUpserted, "zoho", map[string]interface{}{"lead_id": "123"})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	var event models.Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, models.EventLeadUpserted, event.Type)
	assert.Equal(t, "zoho", event.Source)
	assert.Equal(t, "123", event.Data["lead_id"])
	assert.Equal(t, event.ID, string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
}

func TestPublishEventPropagatesWriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("broker down")}, topic: "t"}
	assert.Error(t, p.PublishEvent(context.Background(), "x", "y", nil))
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	pub := NewPublisher(nil, "t")
	_, ok := pub.(NopPublisher)
	assert.True(t, ok)
	assert.NoError(t, pub.PublishEvent(context.Background(), "x", "y", nil))
}
