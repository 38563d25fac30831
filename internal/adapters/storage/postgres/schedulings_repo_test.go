package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaccination-clinic/internal/domain/schedulings"
)

func newMockRepo(t *testing.T) (*SchedulingsRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSchedulingsRepo(db, 5*time.Second), mock
}

func vaccineRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "manufacturer", "total_stock", "doses_required", "interval_days", "min_stock_level",
		"created_at", "updated_at",
	}).AddRow("vac-1", "covid-19", "acme labs", 10, 2, 21, 5, now, now)
}

// La transacción completa: BEGIN, SET LOCAL lock_timeout, SELECT FOR
// UPDATE, conteo, INSERT y COMMIT, en ese orden.
func TestInTx_FullReservationFlow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '5000ms'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("vac-1").
		WillReturnRows(vaccineRows())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("vac-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec("INSERT INTO schedulings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		v, err := led.LockVaccine(context.Background(), "vac-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 10, v.TotalStock)
		assert.Equal(t, 2, v.DosesRequired)

		count, err := led.CountReserved(context.Background(), "vac-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 3, count)

		return led.Insert(context.Background(), schedulings.Scheduling{
			ID:            "sched-1",
			UserID:        "user-1",
			VaccineID:     "vac-1",
			DoseNumber:    1,
			ScheduledDate: time.Now().AddDate(0, 0, 7),
			Status:        schedulings.StatusScheduled,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Un error de fn hace ROLLBACK, nunca COMMIT.
func TestInTx_RollbackOnValidationFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("vac-1").
		WillReturnRows(vaccineRows())
	mock.ExpectRollback()

	wantErr := &schedulings.InsufficientStockError{VaccineID: "vac-1", TotalStock: 10, ReservedCount: 10}
	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		if _, err := led.LockVaccine(context.Background(), "vac-1"); err != nil {
			return err
		}
		return wantErr
	})

	require.ErrorIs(t, err, schedulings.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 55P03 (lock_not_available) se traduce a ErrLockTimeout.
func TestLockVaccine_LockNotAvailableIsTimeout(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("vac-1").
		WillReturnError(&pgconn.PgError{Code: pgLockNotAvailable})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		_, err := led.LockVaccine(context.Background(), "vac-1")
		return err
	})

	require.ErrorIs(t, err, schedulings.ErrLockTimeout)
	assert.True(t, schedulings.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Deadlock detectado recibe el mismo trato: abortó limpio, reintentable.
func TestLockVaccine_DeadlockIsTimeout(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("vac-1").
		WillReturnError(&pgconn.PgError{Code: pgDeadlockDetected})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		_, err := led.LockVaccine(context.Background(), "vac-1")
		return err
	})

	require.ErrorIs(t, err, schedulings.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Vacuna inexistente (o soft-deleted: el WHERE la excluye) => not found.
func TestLockVaccine_MissingVaccine(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		_, err := led.LockVaccine(context.Background(), "missing")
		return err
	})

	require.ErrorIs(t, err, schedulings.ErrVaccineNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveByDose_NoRowsIsNotAnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("WHERE user_id = \\$1 AND vaccine_id = \\$2 AND dose_number = \\$3").
		WithArgs("user-1", "vac-1", 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(led schedulings.Ledger) error {
		_, exists, err := led.ActiveByDose(context.Background(), "user-1", "vac-1", 1)
		if err != nil {
			return err
		}
		assert.False(t, exists)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_ScansNullableColumns(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	deleted := now.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "vaccine_id", "assigned_nurse_id",
		"dose_number", "scheduled_date", "status", "notes",
		"created_at", "updated_at", "deleted_at",
	}).AddRow("sched-1", "user-1", "vac-1", nil, 1, now, "CANCELLED", "", now, now, deleted)

	mock.ExpectQuery("WHERE id = \\$1").
		WithArgs("sched-1").
		WillReturnRows(rows)

	s, err := repo.GetByID(context.Background(), "sched-1")
	require.NoError(t, err)

	assert.Empty(t, s.AssignedNurseID)
	assert.Equal(t, schedulings.StatusCancelled, s.Status)
	require.NotNil(t, s.DeletedAt)
	assert.WithinDuration(t, deleted, *s.DeletedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, schedulings.ErrNotFound)
}

func TestUpdate_ZeroRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE schedulings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), schedulings.Scheduling{
		ID:     "missing",
		Status: schedulings.StatusConfirmed,
	})
	assert.ErrorIs(t, err, schedulings.ErrNotFound)
}

func TestCountReserved_OutsideTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("vac-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountReserved(context.Background(), "vac-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestMapLockErr_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapLockErr(context.Background(), plain))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mapLockErr(ctx, plain), schedulings.ErrLockTimeout)
}
