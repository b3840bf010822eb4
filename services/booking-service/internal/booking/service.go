package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zerion/slotbook/services/booking-service/internal/availability"
	"github.com/zerion/slotbook/services/booking-service/internal/calendar"
	"github.com/zerion/slotbook/services/booking-service/internal/contacts"
	"github.com/zerion/slotbook/services/booking-service/internal/events"
	"github.com/zerion/slotbook/services/booking-service/internal/ledger"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
	"github.com/zerion/slotbook/services/booking-service/internal/sheets"
	"github.com/zerion/slotbook/services/booking-service/internal/slotlock"
)

var (
	ErrSlotTaken       = errors.New("slot already reserved")
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrSlotBusy        = errors.New("slot is being booked by another request")
	ErrStorage         = errors.New("reservation storage failed")
	ErrUpstream        = errors.New("calendar request failed")
)

type Deps struct {
	Schedule availability.Schedule
	Ledger   *ledger.Ledger
	Calendar calendar.Provider
	Sheet    sheets.Appender
	Leads    contacts.Registrar
	Events   events.Publisher
	Locks    slotlock.Locker
	Logger   *slog.Logger
	Now      func() time.Time
	// TimeZone is the IANA name sent with calendar events.
	TimeZone string
	// FollowUpTimeout bounds the background sheet/lead/event work of one booking.
	FollowUpTimeout time.Duration
}

type Service struct {
	sched           availability.Schedule
	ledger          *ledger.Ledger
	calendar        calendar.Provider
	sheet           sheets.Appender
	leads           contacts.Registrar
	events          events.Publisher
	locks           slotlock.Locker
	logger          *slog.Logger
	now             func() time.Time
	timeZone        string
	followUpTimeout time.Duration

	// mu orders wg.Add against Wait and Close; closed makes follow-ups run inline.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewService(d Deps) *Service {
	s := &Service{
		sched:           d.Schedule,
		ledger:          d.Ledger,
		calendar:        d.Calendar,
		sheet:           d.Sheet,
		leads:           d.Leads,
		events:          d.Events,
		locks:           d.Locks,
		logger:          d.Logger,
		now:             d.Now,
		timeZone:        d.TimeZone,
		followUpTimeout: d.FollowUpTimeout,
	}
	if s.calendar == nil {
		s.calendar = calendar.NewDisabled()
	}
	if s.sheet == nil {
		s.sheet = sheets.Noop{}
	}
	if s.leads == nil {
		s.leads = contacts.Noop{}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.locks == nil {
		s.locks = slotlock.NewLocal()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.followUpTimeout <= 0 {
		s.followUpTimeout = 15 * time.Second
	}
	return s
}

func (s *Service) Schedule() availability.Schedule { return s.sched }

// Today is the business-local date.
func (s *Service) Today() string {
	return s.sched.Today(s.now())
}

// Availability returns the free slots of date: the working-hours grid minus calendar busy time
// and times already in the ledger.
func (s *Service) Availability(ctx context.Context, date string) ([]availability.Slot, error) {
	return s.freeSlots(ctx, date, s.now())
}

func (s *Service) freeSlots(ctx context.Context, date string, now time.Time) ([]availability.Slot, error) {
	day, err := s.sched.ParseDay(date, now)
	if err != nil {
		return nil, err
	}
	win := s.sched.Window(day)
	busy, err := s.calendar.ListBusyIntervals(ctx, win.Start, win.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	reserved, err := s.ledger.ReservedTimesFor(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	times := make([]string, 0, len(reserved))
	for t := range reserved {
		times = append(times, t)
	}
	sort.Strings(times)
	busy = append(busy, s.sched.ReservedIntervals(date, times)...)

	return s.sched.Compute(date, busy, now)
}

// Book validates and records a reservation, then forwards it to the calendar. The sheet row,
// lead signup and event run in the background and only log failures.
//
// When the calendar insert fails the ledger entry is kept and ErrUpstream is returned along
// with the stored reservation.
func (s *Service) Book(ctx context.Context, req model.BookingRequest) (model.Confirmation, error) {
	now := s.now()
	req, err := ValidateBooking(req, s.sched, now)
	if err != nil {
		return model.Confirmation{}, err
	}

	release, err := s.locks.Acquire(ctx, slotlock.Key(req.Date, req.Time))
	if err != nil {
		if errors.Is(err, slotlock.ErrBusy) {
			return model.Confirmation{}, ErrSlotBusy
		}
		return model.Confirmation{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer release()

	taken, err := s.ledger.IsReserved(ctx, req.Date, req.Time)
	if err != nil {
		return model.Confirmation{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if taken {
		return model.Confirmation{}, ErrSlotTaken
	}

	slots, err := s.freeSlots(ctx, req.Date, now)
	if err != nil {
		return model.Confirmation{}, err
	}
	if !offered(slots, req.Time) {
		return model.Confirmation{}, ErrSlotUnavailable
	}

	stored, err := s.ledger.AppendReservation(ctx, model.Reservation{
		Date:    req.Date,
		Time:    req.Time,
		Email:   req.Email,
		Name:    req.Name,
		Service: req.Service,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrSlotTaken) {
			return model.Confirmation{}, ErrSlotTaken
		}
		return model.Confirmation{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.logger.Info("reservation recorded", "reservation_id", stored.ID, "date", stored.Date, "time", stored.Time)

	start, err := s.sched.At(stored.Date, stored.Time)
	if err != nil {
		return model.Confirmation{Reservation: stored}, err
	}
	link, err := s.calendar.InsertEvent(ctx, calendar.Event{
		Summary:     "Reserva de " + stored.Name,
		Description: "Servicio solicitado: " + stored.Service,
		Start:       start,
		End:         start.Add(s.sched.SlotDuration),
		TimeZone:    s.timeZone,
		Attendees:   []string{stored.Email},
	})
	if err != nil {
		s.logger.Error("calendar insert failed after reservation was recorded", "reservation_id", stored.ID, "err", err)
		return model.Confirmation{Reservation: stored}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	s.followUp(ctx, stored, link, now)
	return model.Confirmation{Reservation: stored, EventLink: link}, nil
}

func (s *Service) followUp(ctx context.Context, r model.Reservation, link string, now time.Time) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.forward(ctx, r, link, now)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.forward(ctx, r, link, now)
	}()
}

func (s *Service) forward(ctx context.Context, r model.Reservation, link string, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.followUpTimeout)
	defer cancel()

	row := sheets.ReservationRow(r, now.In(s.sched.Loc()))
	if err := s.sheet.AppendRow(ctx, row); err != nil {
		s.logger.Warn("sheet append failed", "reservation_id", r.ID, "err", err)
	}
	if err := s.leads.RegisterLead(ctx, r.Name, r.Email); err != nil {
		s.logger.Warn("lead signup failed", "reservation_id", r.ID, "err", err)
	}
	if err := s.events.ReservationConfirmed(ctx, r, link); err != nil {
		s.logger.Warn("reservation event publish failed", "reservation_id", r.ID, "err", err)
	}
}

// Wait blocks until background follow-ups of earlier bookings are done. Bookings that
// finish meanwhile queue their follow-up after Wait returns.
func (s *Service) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
}

// Close drains background follow-ups. Bookings still in flight afterwards forward
// synchronously before returning, so nothing is dropped when shutdown runs out of time.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.wg.Wait()
}

func (s *Service) Reservations(ctx context.Context) ([]model.Reservation, error) {
	return s.ledger.ListReservations(ctx)
}

func (s *Service) ReservationCount(ctx context.Context) (int, error) {
	return s.ledger.Count(ctx)
}

func offered(slots []availability.Slot, clock string) bool {
	for _, slot := range slots {
		if slot.Time == clock {
			return true
		}
	}
	return false
}
