package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

type Appender interface {
	AppendRow(ctx context.Context, row []string) error
}

// Client appends rows to a spreadsheet through the Sheets v4 values:append call.
type Client struct {
	http          *http.Client
	baseURL       string
	spreadsheetID string
	rng           string
}

func NewClient(httpClient *http.Client, spreadsheetID string) *Client {
	return &Client{
		http:          httpClient,
		baseURL:       defaultBaseURL,
		spreadsheetID: spreadsheetID,
		rng:           "A1",
	}
}

func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

func (c *Client) AppendRow(ctx context.Context, row []string) error {
	if c.spreadsheetID == "" {
		return errors.New("spreadsheet id not configured")
	}
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	raw, err := json.Marshal(map[string]any{"values": [][]any{values}})
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("valueInputOption", "USER_ENTERED")
	params.Set("insertDataOption", "INSERT_ROWS")
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(c.rng), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("google sheets: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// ReservationRow lays a reservation out in the audit sheet's column order: company, name, phone,
// email, sector, city, logged-at, status, date, time, three spare columns, requested service.
func ReservationRow(r model.Reservation, loggedAt time.Time) []string {
	service := r.Service
	if service == "" {
		service = model.Unspecified
	}
	return []string{
		"",
		r.Name,
		"",
		r.Email,
		"",
		"",
		loggedAt.Format("2006-01-02 15:04"),
		"Agendado",
		r.Date,
		r.Time,
		"", "", "",
		"Solicitó: " + service,
	}
}

type Noop struct{}

func (Noop) AppendRow(_ context.Context, _ []string) error {
	return nil
}
