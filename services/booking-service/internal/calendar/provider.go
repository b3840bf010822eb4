package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/zerion/slotbook/services/booking-service/internal/availability"
)

// ErrCircuitOpen is returned while the calendar breaker rejects calls.
var ErrCircuitOpen = errors.New("calendar temporarily unavailable")

type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

type Provider interface {
	// ListBusyIntervals returns the busy time overlapping [start, end).
	ListBusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error)
	// InsertEvent creates the event and returns a link to it.
	InsertEvent(ctx context.Context, ev Event) (string, error)
}

// Disabled reports no busy time and accepts events without recording them.
type Disabled struct{}

func NewDisabled() *Disabled {
	return &Disabled{}
}

func (Disabled) ListBusyIntervals(_ context.Context, _, _ time.Time) ([]availability.Interval, error) {
	return nil, nil
}

func (Disabled) InsertEvent(_ context.Context, _ Event) (string, error) {
	return "", nil
}
