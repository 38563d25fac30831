package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vaccination-clinic/internal/domain/vaccines"
)

type VaccinesRepo struct {
	db *sql.DB
}

func NewVaccinesRepo(db *sql.DB) *VaccinesRepo {
	return &VaccinesRepo{db: db}
}

func (r *VaccinesRepo) Create(ctx context.Context, v vaccines.Vaccine) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vaccines (
			id, name, manufacturer, total_stock, doses_required,
			interval_days, min_stock_level, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		v.ID,
		v.Name,
		v.Manufacturer,
		v.TotalStock,
		v.DosesRequired,
		v.IntervalDays,
		v.MinStockLevel,
		v.CreatedAt,
		v.UpdatedAt,
	)
	return err
}

const selectVaccine = `
	SELECT id, name, manufacturer, total_stock, doses_required,
	       interval_days, min_stock_level, created_at, updated_at, deleted_at
	FROM vaccines
`

func scanVaccine(row rowScanner) (vaccines.Vaccine, error) {
	var (
		v       vaccines.Vaccine
		deleted sql.NullTime
	)
	if err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Manufacturer,
		&v.TotalStock,
		&v.DosesRequired,
		&v.IntervalDays,
		&v.MinStockLevel,
		&v.CreatedAt,
		&v.UpdatedAt,
		&deleted,
	); err != nil {
		return vaccines.Vaccine{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		v.DeletedAt = &t
	}
	return v, nil
}

func (r *VaccinesRepo) GetByID(ctx context.Context, id string) (vaccines.Vaccine, error) {
	row := r.db.QueryRowContext(ctx, selectVaccine+` WHERE id = $1`, id)
	v, err := scanVaccine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vaccines.Vaccine{}, vaccines.ErrNotFound
		}
		return vaccines.Vaccine{}, err
	}
	return v, nil
}

func (r *VaccinesRepo) List(ctx context.Context) ([]vaccines.Vaccine, error) {
	rows, err := r.db.QueryContext(ctx, selectVaccine+`
		WHERE deleted_at IS NULL
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vaccines.Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *VaccinesRepo) Update(ctx context.Context, v vaccines.Vaccine) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vaccines
		SET name = $2, manufacturer = $3, doses_required = $4,
		    interval_days = $5, min_stock_level = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`,
		v.ID,
		v.Name,
		v.Manufacturer,
		v.DosesRequired,
		v.IntervalDays,
		v.MinStockLevel,
		v.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return vaccines.ErrNotFound
	}
	return nil
}

func (r *VaccinesRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vaccines
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return vaccines.ErrNotFound
	}
	return nil
}

// AdjustStock es atómico: el WHERE garantiza que total_stock nunca
// quede negativo sin necesidad de leer antes.
func (r *VaccinesRepo) AdjustStock(ctx context.Context, id string, delta int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vaccines
		SET total_stock = total_stock + $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND total_stock + $2 >= 0
	`, id, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// O no existe, o el delta dejaría stock negativo.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return vaccines.ErrStockUnderflow
	}
	return nil
}

func (r *VaccinesRepo) CreateBatch(ctx context.Context, b vaccines.Batch) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vaccine_batches (id, vaccine_id, lot_number, quantity, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		b.ID,
		b.VaccineID,
		b.LotNumber,
		b.Quantity,
		b.ExpiresAt,
		b.CreatedAt,
	)
	return err
}

func (r *VaccinesRepo) ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]vaccines.Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vaccine_id, lot_number, quantity, expires_at, created_at
		FROM vaccine_batches
		WHERE expires_at < $1
		ORDER BY expires_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vaccines.Batch
	for rows.Next() {
		var b vaccines.Batch
		if err := rows.Scan(&b.ID, &b.VaccineID, &b.LotNumber, &b.Quantity, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *VaccinesRepo) ListBelowMinStock(ctx context.Context) ([]vaccines.Vaccine, error) {
	rows, err := r.db.QueryContext(ctx, selectVaccine+`
		WHERE deleted_at IS NULL
		  AND min_stock_level > 0
		  AND total_stock < min_stock_level
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vaccines.Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
