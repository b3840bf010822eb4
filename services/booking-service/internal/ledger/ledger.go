package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

var (
	// ErrSlotTaken is returned when a store already holds a reservation for the same date and time.
	ErrSlotTaken = errors.New("slot already reserved")
	ErrInvalid   = errors.New("reservation is missing date or time")
)

// Store persists reservations in append order.
type Store interface {
	List(ctx context.Context) ([]model.Reservation, error)
	Append(ctx context.Context, r model.Reservation) error
}

type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithIDs(newID func() string) Option {
	return func(l *Ledger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListReservations returns every reservation in creation order.
func (l *Ledger) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	out, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if out == nil {
		out = []model.Reservation{}
	}
	return out, nil
}

// ReservedTimesFor returns the set of "HH:MM" times already booked on date.
func (l *Ledger) ReservedTimesFor(ctx context.Context, date string) (map[string]struct{}, error) {
	all, err := l.ListReservations(ctx)
	if err != nil {
		return nil, err
	}
	times := make(map[string]struct{})
	for _, r := range all {
		if r.Date == date {
			times[r.Time] = struct{}{}
		}
	}
	return times, nil
}

// IsReserved reports whether date and clock already hold a reservation.
func (l *Ledger) IsReserved(ctx context.Context, date, clock string) (bool, error) {
	times, err := l.ReservedTimesFor(ctx, date)
	if err != nil {
		return false, err
	}
	_, ok := times[clock]
	return ok, nil
}

// AppendReservation stamps an id and creation time, fills placeholders for blank optional
// fields and persists the reservation. It returns the stored record.
func (l *Ledger) AppendReservation(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	if r.Date == "" || r.Time == "" {
		return model.Reservation{}, ErrInvalid
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = model.Unspecified
	}
	if strings.TrimSpace(r.Service) == "" {
		r.Service = model.Unspecified
	}
	if r.ID == "" {
		r.ID = l.newID()
	}
	r.CreatedAt = l.now().UTC()

	if err := l.store.Append(ctx, r); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return model.Reservation{}, err
		}
		return model.Reservation{}, fmt.Errorf("append reservation: %w", err)
	}
	return r, nil
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	all, err := l.ListReservations(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// ReadyCheck probes the backing store with a read.
func (l *Ledger) ReadyCheck(ctx context.Context) error {
	_, err := l.store.List(ctx)
	return err
}
