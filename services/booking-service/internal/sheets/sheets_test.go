package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

func TestAppendRow(t *testing.T) {
	var path, query string
	var body struct {
		Values [][]string `json:"values"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"updates":{"updatedRows":1}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "sheet-1").WithBaseURL(srv.URL)
	require.NoError(t, c.AppendRow(context.Background(), []string{"a", "b"}))

	assert.Equal(t, "/spreadsheets/sheet-1/values/A1:append", path)
	assert.Contains(t, query, "valueInputOption=USER_ENTERED")
	require.Len(t, body.Values, 1)
	assert.Equal(t, []string{"a", "b"}, body.Values[0])
}

func TestAppendRow_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewClient(srv.Client(), "sheet-1").WithBaseURL(srv.URL).AppendRow(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")

	err = NewClient(srv.Client(), "").AppendRow(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestReservationRow(t *testing.T) {
	loc := time.FixedZone("ECT", -5*60*60)
	row := ReservationRow(model.Reservation{
		Date: "2026-03-11", Time: "13:00", Name: "Ana", Email: "ana@example.com",
	}, time.Date(2026, 3, 10, 9, 5, 0, 0, loc))

	require.Len(t, row, 14)
	assert.Equal(t, "Ana", row[1])
	assert.Equal(t, "ana@example.com", row[3])
	assert.Equal(t, "2026-03-10 09:05", row[6])
	assert.Equal(t, "Agendado", row[7])
	assert.Equal(t, "2026-03-11", row[8])
	assert.Equal(t, "13:00", row[9])
	assert.Equal(t, "Solicitó: No especificado", row[13])
}
