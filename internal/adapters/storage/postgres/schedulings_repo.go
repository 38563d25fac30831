package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"vaccination-clinic/internal/domain/schedulings"
	"vaccination-clinic/internal/domain/vaccines"
)

// Códigos de Postgres que tratamos como reintentables: espera de lock
// vencida y deadlock detectado. En ambos casos la transacción abortó
// sin escrituras parciales.
const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
)

type SchedulingsRepo struct {
	db *sql.DB

	// lockTimeout acota la espera por el FOR UPDATE (SET LOCAL).
	lockTimeout time.Duration
}

func NewSchedulingsRepo(db *sql.DB, lockTimeout time.Duration) *SchedulingsRepo {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &SchedulingsRepo{db: db, lockTimeout: lockTimeout}
}

type pgTx struct {
	tx *sql.Tx
}

// InTx ejecuta fn dentro de una transacción. El lock de LockVaccine se
// libera en el COMMIT/ROLLBACK, nunca antes.
func (r *SchedulingsRepo) InTx(ctx context.Context, fn func(led schedulings.Ledger) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// SET LOCAL solo vive dentro de esta transacción.
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *pgTx) LockVaccine(ctx context.Context, vaccineID string) (vaccines.Vaccine, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, manufacturer, total_stock, doses_required, interval_days, min_stock_level,
		       created_at, updated_at
		FROM vaccines
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, vaccineID)

	var v vaccines.Vaccine
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
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vaccines.Vaccine{}, schedulings.ErrVaccineNotFound
		}
		return vaccines.Vaccine{}, mapLockErr(ctx, err)
	}
	return v, nil
}

func (t *pgTx) CountReserved(ctx context.Context, vaccineID string) (int, error) {
	return countReserved(ctx, t.tx, vaccineID)
}

func (t *pgTx) ActiveByDose(ctx context.Context, userID, vaccineID string, doseNumber int) (schedulings.Scheduling, bool, error) {
	row := t.tx.QueryRowContext(ctx, selectScheduling+`
		WHERE user_id = $1 AND vaccine_id = $2 AND dose_number = $3
		  AND deleted_at IS NULL AND status <> 'CANCELLED'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, vaccineID, doseNumber)

	s, err := scanScheduling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schedulings.Scheduling{}, false, nil
		}
		return schedulings.Scheduling{}, false, err
	}
	return s, true, nil
}

func (t *pgTx) Insert(ctx context.Context, s schedulings.Scheduling) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO schedulings (
			id, user_id, vaccine_id, assigned_nurse_id,
			dose_number, scheduled_date, status, notes,
			created_at, updated_at, deleted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		s.ID,
		s.UserID,
		s.VaccineID,
		nullString(s.AssignedNurseID),
		s.DoseNumber,
		s.ScheduledDate,
		string(s.Status),
		s.Notes,
		s.CreatedAt,
		s.UpdatedAt,
		s.DeletedAt,
	)
	return err
}

const selectScheduling = `
	SELECT id, user_id, vaccine_id, assigned_nurse_id,
	       dose_number, scheduled_date, status, notes,
	       created_at, updated_at, deleted_at
	FROM schedulings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduling(row rowScanner) (schedulings.Scheduling, error) {
	var (
		s       schedulings.Scheduling
		nurse   sql.NullString
		status  string
		deleted sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.VaccineID,
		&nurse,
		&s.DoseNumber,
		&s.ScheduledDate,
		&status,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
		&deleted,
	); err != nil {
		return schedulings.Scheduling{}, err
	}

	s.Status = schedulings.Status(status)
	if nurse.Valid {
		s.AssignedNurseID = nurse.String
	}
	if deleted.Valid {
		t := deleted.Time
		s.DeletedAt = &t
	}
	return s, nil
}

func (r *SchedulingsRepo) GetByID(ctx context.Context, id string) (schedulings.Scheduling, error) {
	row := r.db.QueryRowContext(ctx, selectScheduling+` WHERE id = $1`, id)
	s, err := scanScheduling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schedulings.Scheduling{}, schedulings.ErrNotFound
		}
		return schedulings.Scheduling{}, err
	}
	return s, nil
}

func (r *SchedulingsRepo) Update(ctx context.Context, s schedulings.Scheduling) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedulings
		SET assigned_nurse_id = $2,
		    scheduled_date = $3,
		    status = $4,
		    notes = $5,
		    updated_at = $6,
		    deleted_at = $7
		WHERE id = $1
	`,
		s.ID,
		nullString(s.AssignedNurseID),
		s.ScheduledDate,
		string(s.Status),
		s.Notes,
		s.UpdatedAt,
		s.DeletedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedulings.ErrNotFound
	}
	return nil
}

func (r *SchedulingsRepo) ListByUser(ctx context.Context, userID string) ([]schedulings.Scheduling, error) {
	rows, err := r.db.QueryContext(ctx, selectScheduling+`
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY scheduled_date ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedulings.Scheduling
	for rows.Next() {
		s, err := scanScheduling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SchedulingsRepo) CountReserved(ctx context.Context, vaccineID string) (int, error) {
	return countReserved(ctx, r.db, vaccineID)
}

func (r *SchedulingsRepo) InsertApplication(ctx context.Context, a schedulings.Application) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (
			id, scheduling_id, user_id, vaccine_id, dose_number, applied_by, applied_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		a.ID,
		a.SchedulingID,
		a.UserID,
		a.VaccineID,
		a.DoseNumber,
		a.AppliedBy,
		a.AppliedAt,
	)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countReserved(ctx context.Context, q querier, vaccineID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM schedulings
		WHERE vaccine_id = $1
		  AND deleted_at IS NULL
		  AND status IN ('SCHEDULED','CONFIRMED')
	`, vaccineID).Scan(&count)
	return count, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapLockErr traduce los fallos de adquisición de lock a ErrLockTimeout
// para que el llamador sepa que puede reintentar el intento completo.
func mapLockErr(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected {
			return schedulings.ErrLockTimeout
		}
	}
	if ctx.Err() != nil {
		return schedulings.ErrLockTimeout
	}
	return err
}
