package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reservations (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	date        TEXT NOT NULL,
	time        TEXT NOT NULL,
	email       TEXT NOT NULL,
	name        TEXT NOT NULL,
	service     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (date, time)
);
`

type SQLiteStore struct {
	db *sqlx.DB
}

// sqliteRow keeps created_at as text so the driver never has to guess a time layout.
type sqliteRow struct {
	ID        string `db:"id"`
	Date      string `db:"date"`
	Time      string `db:"time"`
	Email     string `db:"email"`
	Name      string `db:"name"`
	Service   string `db:"service"`
	CreatedAt string `db:"created_at"`
}

// OpenSQLite opens (and creates) the database at path. ":memory:" keeps everything in process.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		if strings.Contains(dsn, "?") {
			dsn += "&"
		} else {
			dsn += "?"
		}
		dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, r model.Reservation) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reservations (id, date, time, email, name, service, created_at)
		VALUES (:id, :date, :time, :email, :name, :service, :created_at)
	`, sqliteRow{
		ID:        r.ID,
		Date:      r.Date,
		Time:      r.Time,
		Email:     r.Email,
		Name:      r.Name,
		Service:   r.Service,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if isSQLiteUnique(err) {
		return ErrSlotTaken
	}
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Reservation, error) {
	var rows []sqliteRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, date, time, email, name, service, created_at
		FROM reservations
		ORDER BY seq ASC
	`); err != nil {
		return nil, err
	}

	out := make([]model.Reservation, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("reservation %s: bad created_at %q: %w", row.ID, row.CreatedAt, err)
		}
		out = append(out, model.Reservation{
			ID:        row.ID,
			Date:      row.Date,
			Time:      row.Time,
			Email:     row.Email,
			Name:      row.Name,
			Service:   row.Service,
			CreatedAt: created,
		})
	}
	return out, nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
