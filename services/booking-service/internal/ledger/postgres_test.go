package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zerion/slotbook/libs/db"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

// openPostgres returns a migrated, emptied store when TEST_DATABASE_URL is set, nil otherwise.
func openPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		return nil
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE reservations RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	store := openPostgres(t)
	if store == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := model.Reservation{ID: "a", Date: "2026-03-12", Time: "10:00", Email: "a@example.com", Name: "A", Service: "S", CreatedAt: created}
	if err := store.Append(ctx, r); err != nil {
		t.Fatalf("append: %v", err)
	}
	r.ID = "b"
	if err := store.Append(ctx, r); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken from unique index, got %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != "a" || !all[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected rows: %+v", all)
	}
}

func TestIsConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"other pg error", &pgconn.PgError{Code: "23503"}, false},
		{"wrapped plain error", fmt.Errorf("insert: %w", errors.New("connection reset")), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsConflict(tc.err); got != tc.want {
			t.Fatalf("%s: IsConflict = %v, want %v", tc.name, got, tc.want)
		}
	}
}
