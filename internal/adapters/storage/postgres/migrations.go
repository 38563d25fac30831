package postgres

import "database/sql"

// Migrate crea el esquema si no existe. Idempotente.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS vaccines (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			manufacturer TEXT NOT NULL DEFAULT '',
			total_stock INTEGER NOT NULL DEFAULT 0 CHECK (total_stock >= 0),
			doses_required INTEGER NOT NULL,
			interval_days INTEGER NOT NULL DEFAULT 0,
			min_stock_level INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS vaccine_batches (
			id UUID PRIMARY KEY,
			vaccine_id UUID NOT NULL REFERENCES vaccines(id),
			lot_number TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schedulings (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			vaccine_id UUID NOT NULL REFERENCES vaccines(id),
			assigned_nurse_id UUID,
			dose_number INTEGER NOT NULL,
			scheduled_date TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		);`,
		// Índice parcial para el conteo de reservas bajo el lock.
		`CREATE INDEX IF NOT EXISTS idx_schedulings_reserved
			ON schedulings (vaccine_id)
			WHERE deleted_at IS NULL AND status IN ('SCHEDULED','CONFIRMED');`,
		`CREATE TABLE IF NOT EXISTS applications (
			id UUID PRIMARY KEY,
			scheduling_id UUID NOT NULL UNIQUE REFERENCES schedulings(id),
			user_id UUID NOT NULL,
			vaccine_id UUID NOT NULL,
			dose_number INTEGER NOT NULL,
			applied_by UUID NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			priority TEXT NOT NULL,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
