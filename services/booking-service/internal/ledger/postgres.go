package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zerion/slotbook/libs/db"
	"github.com/zerion/slotbook/services/booking-service/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reservations (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	date        TEXT NOT NULL,
	time        TEXT NOT NULL,
	email       TEXT NOT NULL,
	name        TEXT NOT NULL,
	service     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS reservations_slot_uniq ON reservations (date, time);
`

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, r model.Reservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reservations (id, date, time, email, name, service, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Date, r.Time, r.Email, r.Name, r.Service, r.CreatedAt)
	if IsConflict(err) {
		return ErrSlotTaken
	}
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, date, time, email, name, service, created_at
		FROM reservations
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		var r model.Reservation
		if err := rows.Scan(&r.ID, &r.Date, &r.Time, &r.Email, &r.Name, &r.Service, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// IsConflict reports a unique-violation from Postgres.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
