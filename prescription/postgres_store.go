package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

// PostgresStore keeps prescriptions in the prescriptions table. Files, quote
// and verification are JSONB documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const prescriptionColumns = `id, customer_id, pharmacy_id, files, note, status, reviewer_id, quote, verification, rejection_reason, created_at, updated_at`

func scanPrescription(row pgx.Row) (logic.Prescription, error) {
	var (
		p                          logic.Prescription
		files, quote, verification []byte
		status                     string
	)
	err := row.Scan(&p.ID, &p.CustomerID, &p.PharmacyID, &files, &p.Note, &status,
		&p.ReviewerID, &quote, &verification, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return logic.Prescription{}, err
	}
	if err := json.Unmarshal(files, &p.Files); err != nil {
		return logic.Prescription{}, fmt.Errorf("decode files of prescription %s: %w", p.ID, err)
	}
	if quote != nil {
		p.Quote = &logic.Quote{}
		if err := json.Unmarshal(quote, p.Quote); err != nil {
			return logic.Prescription{}, fmt.Errorf("decode quote of prescription %s: %w", p.ID, err)
		}
	}
	if verification != nil {
		p.Verification = &logic.Verification{}
		if err := json.Unmarshal(verification, p.Verification); err != nil {
			return logic.Prescription{}, fmt.Errorf("decode verification of prescription %s: %w", p.ID, err)
		}
	}
	st, ok := logic.ParseStatus(status)
	if !ok {
		return logic.Prescription{}, fmt.Errorf("prescription %s has unknown status %q", p.ID, status)
	}
	p.Status = st
	return p, nil
}

// nullableJSON encodes v, mapping a nil pointer to SQL NULL.
func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) Insert(ctx context.Context, p logic.Prescription) error {
	files, err := json.Marshal(p.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	quote, err := nullableJSON(p.Quote)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	verification, err := nullableJSON(p.Verification)
	if err != nil {
		return fmt.Errorf("encode verification: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.CustomerID, p.PharmacyID, files, p.Note, string(p.Status),
		p.ReviewerID, quote, verification, p.RejectionReason, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (logic.Prescription, error) {
	p, err := scanPrescription(s.pool.QueryRow(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return logic.Prescription{}, notFound(id)
	}
	if err != nil {
		return logic.Prescription{}, fmt.Errorf("get prescription %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, from logic.Status, next logic.Prescription) (logic.Prescription, bool, error) {
	quote, err := nullableJSON(next.Quote)
	if err != nil {
		return logic.Prescription{}, false, fmt.Errorf("encode quote: %w", err)
	}
	verification, err := nullableJSON(next.Verification)
	if err != nil {
		return logic.Prescription{}, false, fmt.Errorf("encode verification: %w", err)
	}

	p, err := scanPrescription(s.pool.QueryRow(ctx, `
		UPDATE prescriptions SET
			status = $3, reviewer_id = $4, quote = $5, verification = $6,
			rejection_reason = $7, updated_at = $8
		WHERE id = $1 AND status = $2
		RETURNING `+prescriptionColumns,
		next.ID, string(from), string(next.Status), next.ReviewerID, quote, verification,
		next.RejectionReason, next.UpdatedAt))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return logic.Prescription{}, false, fmt.Errorf("update prescription %s: %w", next.ID, err)
	}
	current, err := s.Get(ctx, next.ID)
	if err != nil {
		return logic.Prescription{}, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]logic.Prescription, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var out []logic.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]logic.Prescription, error) {
	return s.query(ctx, `
		SELECT `+prescriptionColumns+` FROM prescriptions
		WHERE customer_id = $1
		ORDER BY created_at DESC, id`, customerID)
}

func (s *PostgresStore) ListByPharmacy(ctx context.Context, pharmacyID string, status logic.Status) ([]logic.Prescription, error) {
	return s.query(ctx, `
		SELECT `+prescriptionColumns+` FROM prescriptions
		WHERE pharmacy_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id`, pharmacyID, string(status))
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
