package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zerion/slotbook/libs/httpx"
	"github.com/zerion/slotbook/services/booking-service/internal/availability"
	"github.com/zerion/slotbook/services/booking-service/internal/booking"
	"github.com/zerion/slotbook/services/booking-service/internal/calendar"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

type BookingService interface {
	Availability(ctx context.Context, date string) ([]availability.Slot, error)
	Book(ctx context.Context, req model.BookingRequest) (model.Confirmation, error)
	Today() string
	Reservations(ctx context.Context) ([]model.Reservation, error)
	ReservationCount(ctx context.Context) (int, error)
}

type BookingHandler struct {
	svc      BookingService
	adminKey *AdminKey
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingHandler(svc BookingService, adminKey *AdminKey, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		svc:      svc,
		adminKey: adminKey,
		logger:   logger,
		now:      time.Now,
	}
}

// Register mounts every booking route on mux.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/available-slots", h.AvailableSlots)
	mux.HandleFunc("/book-slot", h.BookSlot)
	mux.HandleFunc("/today", h.Today)
	mux.HandleFunc("/admin/reservas", h.AdminReservations)
	mux.HandleFunc("/health", h.Health)
}

type slotsRequest struct {
	Date string `json:"date"`
}

type slotsResponse struct {
	Date      string   `json:"date"`
	Available []string `json:"available"`
	Timestamp string   `json:"timestamp"`
}

type bookResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	EventLink     string `json:"event_link"`
	ReservationID string `json:"reservation_id"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status        string `json:"status"`
	ReservasCount int    `json:"reservasCount"`
	Timestamp     string `json:"timestamp"`
}

func (h *BookingHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	var date string
	switch r.Method {
	case http.MethodGet:
		date = r.URL.Query().Get("date")
	case http.MethodPost:
		var req slotsRequest
		if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
			return
		}
		date = req.Date
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = h.svc.Today()
	}

	slots, err := h.svc.Availability(r.Context(), date)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("availability failed", "date", date, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		}
		httpx.WriteError(w, status, code, messageFor(err, status))
		return
	}

	available := make([]string, 0, len(slots))
	for _, s := range slots {
		available = append(available, s.Label())
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		Date:      date,
		Available: available,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *BookingHandler) BookSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req model.BookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: "invalid_body", Message: "invalid json body"})
		return
	}

	conf, err := h.svc.Book(r.Context(), req)
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("booking failed", "date", req.Date, "time", req.Time, "reservation_id", conf.Reservation.ID,
				"err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		}
		httpx.WriteJSON(w, status, failureResponse{Error: code, Message: messageFor(err, status)})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, bookResponse{
		Success:       true,
		Status:        "confirmed",
		EventLink:     conf.EventLink,
		ReservationID: conf.Reservation.ID,
	})
}

func (h *BookingHandler) Today(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"today": h.svc.Today()})
}

func (h *BookingHandler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.ReservationCount(r.Context())
	if err != nil {
		h.logger.Warn("health: ledger unreadable", "err", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "degraded",
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ReservasCount: count,
		Timestamp:     h.now().UTC().Format(time.RFC3339),
	})
}

// statusFor maps service errors onto HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, availability.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, availability.ErrPastDate):
		return http.StatusBadRequest, "past_date"
	case errors.Is(err, availability.ErrOutOfRange):
		return http.StatusBadRequest, "out_of_range"
	case errors.Is(err, booking.ErrSlotTaken):
		return http.StatusConflict, "slot_taken"
	case errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, booking.ErrSlotBusy):
		return http.StatusConflict, "slot_busy"
	case errors.Is(err, calendar.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "calendar_unavailable"
	case errors.Is(err, booking.ErrUpstream):
		return http.StatusBadGateway, "upstream_failed"
	case errors.Is(err, booking.ErrStorage):
		return http.StatusInternalServerError, "storage_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// messageFor keeps internal error detail out of 5xx responses.
func messageFor(err error, status int) string {
	switch status {
	case http.StatusBadGateway:
		return "calendar request failed"
	case http.StatusServiceUnavailable:
		return "calendar temporarily unavailable, try again shortly"
	case http.StatusInternalServerError:
		return "internal error"
	}
	return err.Error()
}
