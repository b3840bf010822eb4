package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/zerion/slotbook/libs/kafkax"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

const TopicReservationConfirmed = "booking.reservation.confirmed.v1"

type Publisher interface {
	ReservationConfirmed(ctx context.Context, r model.Reservation, eventLink string) error
	Close() error
}

type ReservationConfirmedPayload struct {
	EventID       string    `json:"event_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	ReservationID string    `json:"reservation_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Service       string    `json:"service"`
	EventLink     string    `json:"event_link,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers string) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      kafkax.SplitBrokers(brokers),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) ReservationConfirmed(ctx context.Context, r model.Reservation, eventLink string) error {
	eventID := uuid.NewString()
	payload, err := json.Marshal(ReservationConfirmedPayload{
		EventID:       eventID,
		OccurredAt:    p.now().UTC(),
		ReservationID: r.ID,
		Date:          r.Date,
		Time:          r.Time,
		Name:          r.Name,
		Email:         r.Email,
		Service:       r.Service,
		EventLink:     eventLink,
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic:   TopicReservationConfirmed,
		Key:     []byte(r.ID),
		Value:   payload,
		Headers: kafkax.EventHeaders(eventID, TopicReservationConfirmed),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type Noop struct{}

func (Noop) ReservationConfirmed(_ context.Context, _ model.Reservation, _ string) error {
	return nil
}

func (Noop) Close() error { return nil }
