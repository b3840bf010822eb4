package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerion/slotbook/libs/kafkax"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestReservationConfirmed(t *testing.T) {
	w := &recordingWriter{}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, now: func() time.Time { return now }}

	r := model.Reservation{ID: "res-1", Date: "2026-03-11", Time: "13:00", Name: "Ana", Email: "ana@example.com", Service: "Consulta"}
	require.NoError(t, p.ReservationConfirmed(context.Background(), r, "https://cal/ev1"))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicReservationConfirmed, msg.Topic)
	assert.Equal(t, "res-1", string(msg.Key))
	assert.Equal(t, TopicReservationConfirmed, kafkax.HeaderValue(msg.Headers, "event_type"))

	var payload ReservationConfirmedPayload
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, kafkax.HeaderValue(msg.Headers, "event_id"), payload.EventID)
	assert.Equal(t, "13:00", payload.Time)
	assert.Equal(t, "https://cal/ev1", payload.EventLink)
	assert.True(t, payload.OccurredAt.Equal(now))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
