package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// PostgresLedger keeps records in the inventory_records table. Each operation
// is a single conditional statement, so the row lock taken by the UPDATE is
// the per-key serialization point.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger wraps a pool whose schema was created by storage/postgres.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const recordColumns = `id, pharmacy_id, medicine_id, stock, reserved, price::text, low_stock_threshold, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		price string
	)
	err := row.Scan(&rec.ID, &rec.Key.PharmacyID, &rec.Key.MedicineID,
		&rec.Stock, &rec.Reserved, &price, &rec.LowStockThreshold, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Record{}, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	return rec, nil
}

func (l *PostgresLedger) AdjustStock(ctx context.Context, key Key, delta int, adj Adjustment) (Record, error) {
	if err := key.validate(); err != nil {
		return Record{}, err
	}
	if err := validateAdjustment(key, adj); err != nil {
		return Record{}, err
	}

	var price *string
	if adj.Price != nil {
		s := adj.Price.String()
		price = &s
	}

	row := l.pool.QueryRow(ctx, `
		INSERT INTO inventory_records (pharmacy_id, medicine_id, id, stock, reserved, price, low_stock_threshold, updated_at)
		VALUES ($1, $2, $3, GREATEST($4::int, 0), 0, COALESCE($5::numeric, 0), COALESCE($6::int, 0), NOW())
		ON CONFLICT (pharmacy_id, medicine_id) DO UPDATE SET
			stock = inventory_records.stock + $4::int,
			price = COALESCE($5::numeric, inventory_records.price),
			low_stock_threshold = COALESCE($6::int, inventory_records.low_stock_threshold),
			updated_at = NOW()
		WHERE inventory_records.stock + $4::int >= inventory_records.reserved
		RETURNING `+recordColumns,
		key.PharmacyID, key.MedicineID, key.Root(), delta, price, adj.LowStockThreshold)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, medreserve.NewInvalidQuantity(key.String(), "stock cannot drop below reserved quantity")
	}
	if err != nil {
		return Record{}, fmt.Errorf("adjust stock %s: %w", key, err)
	}
	return rec, nil
}

func (l *PostgresLedger) Reserve(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	if err := key.validate(); err != nil {
		return Record{}, err
	}

	row := l.pool.QueryRow(ctx, `
		UPDATE inventory_records
		SET reserved = reserved + $3, updated_at = NOW()
		WHERE pharmacy_id = $1 AND medicine_id = $2 AND stock - reserved >= $3
		RETURNING `+recordColumns,
		key.PharmacyID, key.MedicineID, qty)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := l.Get(ctx, key)
		if getErr != nil {
			return Record{}, missingAsEmpty(key, qty, getErr)
		}
		return Record{}, medreserve.NewInsufficientStock(key.String(), current.Available(), qty)
	}
	if err != nil {
		return Record{}, fmt.Errorf("reserve %s: %w", key, err)
	}
	return rec, nil
}

func (l *PostgresLedger) Release(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	if err := key.validate(); err != nil {
		return Record{}, err
	}

	row := l.pool.QueryRow(ctx, `
		UPDATE inventory_records
		SET reserved = GREATEST(reserved - $3, 0), updated_at = NOW()
		WHERE pharmacy_id = $1 AND medicine_id = $2
		RETURNING `+recordColumns,
		key.PharmacyID, key.MedicineID, qty)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("release %s: %w", key, err)
	}
	return rec, nil
}

func (l *PostgresLedger) Consume(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	if err := key.validate(); err != nil {
		return Record{}, err
	}

	row := l.pool.QueryRow(ctx, `
		UPDATE inventory_records
		SET stock = stock - $3, reserved = reserved - $3, updated_at = NOW()
		WHERE pharmacy_id = $1 AND medicine_id = $2 AND reserved >= $3
		RETURNING `+recordColumns,
		key.PharmacyID, key.MedicineID, qty)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := l.Get(ctx, key); getErr != nil {
			return Record{}, getErr
		}
		return Record{}, medreserve.NewInvalidQuantity(key.String(), "cannot consume more than reserved")
	}
	if err != nil {
		return Record{}, fmt.Errorf("consume %s: %w", key, err)
	}
	return rec, nil
}

func (l *PostgresLedger) Get(ctx context.Context, key Key) (Record, error) {
	if err := key.validate(); err != nil {
		return Record{}, err
	}
	row := l.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM inventory_records WHERE pharmacy_id = $1 AND medicine_id = $2`,
		key.PharmacyID, key.MedicineID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return rec, nil
}

func (l *PostgresLedger) List(ctx context.Context, filter Filter) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE ($1 = '' OR pharmacy_id = $1)
		  AND ($2 = '' OR medicine_id = $2)
		  AND (NOT $3 OR stock - reserved > 0)
		ORDER BY pharmacy_id, medicine_id`,
		filter.PharmacyID, filter.MedicineID, filter.OnlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list inventory: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return records, nil
}
