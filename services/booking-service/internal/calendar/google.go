package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/zerion/slotbook/services/booking-service/internal/availability"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client talks to the Google Calendar v3 REST API. Every call goes through a circuit breaker.
type Client struct {
	http       *http.Client
	baseURL    string
	calendarID string
	location   *time.Location
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker[any]
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(httpClient *http.Client, calendarID string, breaker BreakerSettings, opts ...Option) *Client {
	c := &Client{
		http:       httpClient,
		baseURL:    defaultBaseURL,
		calendarID: calendarID,
		location:   time.UTC,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if breaker.FailureThreshold == 0 {
		breaker.FailureThreshold = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "google-calendar",
		MaxRequests: 1,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the calendar's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

type googleEvent struct {
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Transparent string     `json:"transparency,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees,omitempty"`
}

func (c *Client) ListBusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	out, err := c.execute(func() (any, error) {
		return c.listBusy(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	return out.([]availability.Interval), nil
}

func (c *Client) InsertEvent(ctx context.Context, ev Event) (string, error) {
	out, err := c.execute(func() (any, error) {
		return c.insert(ctx, ev)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) execute(fn func() (any, error)) (any, error) {
	out, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return out, err
}

func (c *Client) eventsURL() string {
	return fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
}

func (c *Client) listBusy(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	var busy []availability.Interval
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("timeMin", start.UTC().Format(time.RFC3339))
		params.Set("timeMax", end.UTC().Format(time.RFC3339))
		params.Set("singleEvents", "true")
		params.Set("orderBy", "startTime")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventsURL()+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Items         []googleEvent `json:"items"`
			NextPageToken string        `json:"nextPageToken"`
		}
		err = decodeResponse(resp, &payload)
		if err != nil {
			return nil, err
		}
		for _, item := range payload.Items {
			if iv, ok := c.toInterval(item); ok {
				busy = append(busy, iv)
			}
		}
		if payload.NextPageToken == "" {
			return busy, nil
		}
		pageToken = payload.NextPageToken
	}
}

// toInterval drops cancelled and free ("transparent") events. All-day events block whole days.
func (c *Client) toInterval(item googleEvent) (availability.Interval, bool) {
	if item.Status == "cancelled" || item.Transparent == "transparent" {
		return availability.Interval{}, false
	}
	if item.Start.DateTime != "" && item.End.DateTime != "" {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return availability.Interval{}, false
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return availability.Interval{}, false
		}
		return availability.Interval{Start: start, End: end}, true
	}
	if item.Start.Date != "" && item.End.Date != "" {
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, c.location)
		if err != nil {
			return availability.Interval{}, false
		}
		end, err := time.ParseInLocation("2006-01-02", item.End.Date, c.location)
		if err != nil {
			return availability.Interval{}, false
		}
		return availability.Interval{Start: start, End: end}, true
	}
	return availability.Interval{}, false
}

func (c *Client) insert(ctx context.Context, ev Event) (string, error) {
	body := googleEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL(), bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	var created googleEvent
	if err := decodeResponse(resp, &created); err != nil {
		return "", err
	}
	return created.HTMLLink, nil
}

func decodeResponse(resp *http.Response, into any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("google calendar: status=%d body=%s", resp.StatusCode, string(body))
}
