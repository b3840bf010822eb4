package booking

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/zerion/slotbook/services/booking-service/internal/availability"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

var (
	ErrMissingFields = errors.New("missing required fields: date, time, name and email")
	ErrBadFormat     = errors.New("invalid format")
	ErrPastBooking   = errors.New("cannot book a time in the past")
	ErrOutOfRange    = errors.New("date is beyond the booking window")
)

// ValidationError carries the failed rule plus a client-facing message.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind error, msg string) error {
	return &ValidationError{Kind: kind, Message: msg}
}

// ValidateBooking checks required fields, formats, the requested instant against now and the
// lookahead window, in that order. It returns the trimmed request on success.
func ValidateBooking(req model.BookingRequest, sched availability.Schedule, now time.Time) (model.BookingRequest, error) {
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Service = strings.TrimSpace(req.Service)

	if req.Date == "" || req.Time == "" || req.Name == "" || req.Email == "" {
		return req, invalid(ErrMissingFields, ErrMissingFields.Error())
	}

	if _, err := time.Parse(availability.DateLayout, req.Date); err != nil {
		return req, invalid(ErrBadFormat, "invalid date format, expected YYYY-MM-DD")
	}
	if _, err := availability.ParseClock(req.Time); err != nil {
		return req, invalid(ErrBadFormat, "invalid time format, expected HH:MM (24h)")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return req, invalid(ErrBadFormat, "invalid email address")
	}

	start, err := sched.At(req.Date, req.Time)
	if err != nil {
		return req, invalid(ErrBadFormat, err.Error())
	}
	if !start.After(now) {
		return req, invalid(ErrPastBooking, ErrPastBooking.Error())
	}
	if _, err := sched.ParseDay(req.Date, now); errors.Is(err, availability.ErrOutOfRange) {
		return req, invalid(ErrOutOfRange, ErrOutOfRange.Error())
	}
	return req, nil
}
