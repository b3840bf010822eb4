package contacts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLead(t *testing.T) {
	var auth string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	s := NewSendFox("tok", "578013").WithBaseURL(srv.URL)
	require.NoError(t, s.RegisterLead(context.Background(), "Ana María Pérez", " ana@example.com "))

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "ana@example.com", body["email"])
	assert.Equal(t, "Ana", body["first_name"])
	assert.Equal(t, []any{"578013"}, body["lists"])
}

func TestRegisterLead_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := NewSendFox("tok", "1").WithBaseURL(srv.URL)
	assert.ErrorIs(t, s.RegisterLead(context.Background(), "Ana", ""), ErrMissingEmail)
	err := s.RegisterLead(context.Background(), "Ana", "ana@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Cliente", FirstName("   "))
	assert.Equal(t, "Luis", FirstName("Luis"))
	assert.Equal(t, "Luis", FirstName(" Luis  Vera"))
}
