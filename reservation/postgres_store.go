package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benjaminabbitt/medreserve/reservation/logic"
)

// PostgresStore keeps reservations in the reservations table with line items
// as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const reservationColumns = `id, customer_id, pharmacy_id, items, status, expires_at, prescription_id, created_at, updated_at`

func scanReservation(row pgx.Row) (logic.Reservation, error) {
	var (
		r      logic.Reservation
		items  []byte
		status string
	)
	err := row.Scan(&r.ID, &r.CustomerID, &r.PharmacyID, &items, &status,
		&r.ExpiresAt, &r.PrescriptionID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return logic.Reservation{}, err
	}
	if err := json.Unmarshal(items, &r.Items); err != nil {
		return logic.Reservation{}, fmt.Errorf("decode items of reservation %s: %w", r.ID, err)
	}
	st, ok := logic.ParseStatus(status)
	if !ok {
		return logic.Reservation{}, fmt.Errorf("reservation %s has unknown status %q", r.ID, status)
	}
	r.Status = st
	return r, nil
}

func (s *PostgresStore) Insert(ctx context.Context, r logic.Reservation) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.CustomerID, r.PharmacyID, items, string(r.Status),
		r.ExpiresAt, r.PrescriptionID, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (logic.Reservation, error) {
	r, err := scanReservation(s.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return logic.Reservation{}, notFound(id)
	}
	if err != nil {
		return logic.Reservation{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id string, from, to logic.Status, at time.Time) (logic.Reservation, bool, error) {
	r, err := scanReservation(s.pool.QueryRow(ctx, `
		UPDATE reservations SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+reservationColumns,
		id, string(from), string(to), at))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return logic.Reservation{}, false, fmt.Errorf("transition reservation %s: %w", id, err)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return logic.Reservation{}, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]logic.Reservation, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []logic.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]logic.Reservation, error) {
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE customer_id = $1
		ORDER BY created_at DESC, id`, customerID)
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]logic.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
