package contacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultSendFoxURL = "https://api.sendfox.com"

// ErrMissingEmail is returned when a lead has no email to subscribe.
var ErrMissingEmail = errors.New("lead email is required")

type Registrar interface {
	RegisterLead(ctx context.Context, name, email string) error
}

// SendFox subscribes leads to a SendFox list.
type SendFox struct {
	baseURL string
	token   string
	listID  string
	http    *http.Client
}

func NewSendFox(token, listID string) *SendFox {
	return &SendFox{
		baseURL: defaultSendFoxURL,
		token:   strings.TrimSpace(token),
		listID:  strings.TrimSpace(listID),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *SendFox) WithBaseURL(baseURL string) *SendFox {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

func (s *SendFox) WithHTTPClient(c *http.Client) *SendFox {
	if c != nil {
		s.http = c
	}
	return s
}

// FirstName is the first word of name, or "Cliente" when name is blank.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "Cliente"
	}
	return fields[0]
}

func (s *SendFox) RegisterLead(ctx context.Context, name, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingEmail
	}
	payload := map[string]any{
		"email":      email,
		"first_name": FirstName(name),
	}
	if s.listID != "" {
		payload["lists"] = []string{s.listID}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/contacts", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendfox returned status %d", resp.StatusCode)
	}
	return nil
}

type Noop struct{}

func (Noop) RegisterLead(_ context.Context, _, _ string) error {
	return nil
}
