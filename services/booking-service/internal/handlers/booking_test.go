package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zerion/slotbook/services/booking-service/internal/availability"
	"github.com/zerion/slotbook/services/booking-service/internal/booking"
	"github.com/zerion/slotbook/services/booking-service/internal/calendar"
	"github.com/zerion/slotbook/services/booking-service/internal/ledger"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubService struct {
	slots        []availability.Slot
	availErr     error
	bookErr      error
	conf         model.Confirmation
	gotDate      string
	reservations []model.Reservation
	listErr      error
}

func (s *stubService) Availability(_ context.Context, date string) ([]availability.Slot, error) {
	s.gotDate = date
	return s.slots, s.availErr
}

func (s *stubService) Book(_ context.Context, _ model.BookingRequest) (model.Confirmation, error) {
	return s.conf, s.bookErr
}

func (s *stubService) Today() string { return "2026-03-10" }

func (s *stubService) Reservations(context.Context) ([]model.Reservation, error) {
	return s.reservations, s.listErr
}

func (s *stubService) ReservationCount(context.Context) (int, error) {
	return len(s.reservations), s.listErr
}

func serve(h *BookingHandler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAvailableSlots_OK(t *testing.T) {
	svc := &stubService{slots: []availability.Slot{{Date: "2026-03-11", Time: "10:00"}, {Date: "2026-03-11", Time: "11:00"}}}
	h := NewBookingHandler(svc, NewAdminKey(""), discardLogger())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/available-slots?date=2026-03-11", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["date"] != "2026-03-11" || body["timestamp"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	available, ok := body["available"].([]any)
	if !ok || len(available) != 2 || available[0] != "10:00" {
		t.Fatalf("unexpected available: %v", body["available"])
	}
	if _, dup := body["slots"]; dup {
		t.Fatal("response must only carry the available field")
	}
}

func TestAvailableSlots_DefaultsToToday(t *testing.T) {
	svc := &stubService{}
	h := NewBookingHandler(svc, NewAdminKey(""), discardLogger())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/available-slots", nil))
	if rec.Code != http.StatusOK || svc.gotDate != "2026-03-10" {
		t.Fatalf("expected today's slots, got %d for %q", rec.Code, svc.gotDate)
	}
	if !strings.Contains(rec.Body.String(), `"available":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestAvailableSlots_Post(t *testing.T) {
	svc := &stubService{}
	h := NewBookingHandler(svc, NewAdminKey(""), discardLogger())

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/available-slots", strings.NewReader(`{"date":"2026-03-12"}`)))
	if rec.Code != http.StatusOK || svc.gotDate != "2026-03-12" {
		t.Fatalf("expected POST date to be used, got %d for %q", rec.Code, svc.gotDate)
	}

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/available-slots", strings.NewReader(`{"date":`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rec.Code)
	}
}

func TestAvailableSlots_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{availability.ErrInvalidDate, http.StatusBadRequest},
		{availability.ErrPastDate, http.StatusBadRequest},
		{availability.ErrOutOfRange, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", booking.ErrUpstream, errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w: %w", booking.ErrUpstream, calendar.ErrCircuitOpen), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: disk", booking.ErrStorage), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewBookingHandler(&stubService{availErr: tc.err}, NewAdminKey(""), discardLogger())
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/available-slots?date=x", nil))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" || body["message"] == "" {
			t.Fatalf("%v: expected error envelope, got %s", tc.err, rec.Body.String())
		}
		if tc.want >= 500 && strings.Contains(body["message"], "boom") {
			t.Fatalf("internal detail leaked: %s", body["message"])
		}
	}
}

func TestBookSlot_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&booking.ValidationError{Kind: booking.ErrMissingFields, Message: "missing"}, http.StatusBadRequest},
		{&booking.ValidationError{Kind: booking.ErrPastBooking, Message: "past"}, http.StatusBadRequest},
		{booking.ErrSlotTaken, http.StatusConflict},
		{booking.ErrSlotUnavailable, http.StatusConflict},
		{booking.ErrSlotBusy, http.StatusConflict},
		{fmt.Errorf("%w: x", booking.ErrStorage), http.StatusInternalServerError},
		{fmt.Errorf("%w: x", booking.ErrUpstream), http.StatusBadGateway},
	}
	for _, tc := range cases {
		h := NewBookingHandler(&stubService{bookErr: tc.err}, NewAdminKey(""), discardLogger())
		rec := serve(h, httptest.NewRequest(http.MethodPost, "/book-slot", strings.NewReader(`{"date":"2026-03-11","time":"13:00","name":"Ana","email":"ana@example.com"}`)))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["success"] != false || body["message"] == "" {
			t.Fatalf("unexpected failure body: %v", body)
		}
	}
}

func TestBookSlot_MethodAndBody(t *testing.T) {
	h := NewBookingHandler(&stubService{}, NewAdminKey(""), discardLogger())
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/book-slot", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodPost, "/book-slot", strings.NewReader("nope"))); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTodayAndHealth(t *testing.T) {
	svc := &stubService{reservations: []model.Reservation{{ID: "a"}, {ID: "b"}}}
	h := NewBookingHandler(svc, NewAdminKey(""), discardLogger())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/today", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"today":"2026-03-10"`) {
		t.Fatalf("unexpected /today: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || body.Status != "ok" || body.ReservasCount != 2 || body.Timestamp == "" {
		t.Fatalf("unexpected /health: %d %+v", rec.Code, body)
	}

	svc.listErr = errors.New("corrupt")
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unreadable ledger, got %d", rec.Code)
	}
}

func TestAdminReservations(t *testing.T) {
	svc := &stubService{reservations: []model.Reservation{{
		ID: "a", Date: "2026-03-11", Time: "13:00", Name: "<script>x</script>", Email: "ana@example.com",
		Service: "Consulta", CreatedAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}}}
	h := NewBookingHandler(svc, NewAdminKey("s3cret"), discardLogger())

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/admin/reservas?key=wrong", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/admin/reservas", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/admin/reservas?key=s3cret", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html, got %q", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "<td>13:00</td>") || !strings.Contains(out, "ana@example.com") {
		t.Fatalf("missing reservation row: %s", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatal("names must be escaped")
	}
}

func TestAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	hashed := NewAdminKey(string(hash))
	if !hashed.Match("s3cret") || hashed.Match("other") || hashed.Match(string(hash)) {
		t.Fatal("bcrypt key mismatch")
	}
	if NewAdminKey("").Match("") || NewAdminKey("").Match("anything") {
		t.Fatal("unconfigured key must match nothing")
	}
	plain := NewAdminKey("abc")
	if !plain.Match("abc") || plain.Match("abcd") {
		t.Fatal("plain key mismatch")
	}
}

// The full stack: a booked time disappears from the next availability response.
func TestBookedTimeDisappearsOverHTTP(t *testing.T) {
	loc := time.FixedZone("ECT", -5*60*60)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	sched := availability.Schedule{WorkStart: 10 * time.Hour, WorkEnd: 19 * time.Hour, SlotDuration: time.Hour, LookaheadDays: 14, Location: loc}
	svc := booking.NewService(booking.Deps{
		Schedule: sched,
		Ledger:   ledger.New(ledger.NewFileStore(filepath.Join(t.TempDir(), "reservas.json"))),
		Calendar: calendar.NewDisabled(),
		Logger:   discardLogger(),
		Now:      func() time.Time { return now },
	})
	h := NewBookingHandler(svc, NewAdminKey(""), discardLogger())

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/book-slot", bytes.NewBufferString(`{"date":"2026-03-11","time":"13:00","name":"Ana","email":"ana@example.com"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var conf bookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &conf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !conf.Success || conf.Status != "confirmed" || conf.ReservationID == "" {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}
	svc.Wait()

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/available-slots?date=2026-03-11", nil))
	var slots slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, s := range slots.Available {
		if s == "13:00" {
			t.Fatalf("13:00 still offered: %v", slots.Available)
		}
	}
	if len(slots.Available) != 8 {
		t.Fatalf("expected 8 slots, got %v", slots.Available)
	}

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/book-slot", bytes.NewBufferString(`{"date":"2026-03-11","time":"13:00","name":"Bo","email":"bo@example.com"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for the second booking, got %d", rec.Code)
	}
}
