package schedulings

import (
	"context"

	"vaccination-clinic/internal/domain/vaccines"
)

// Ledger es la vista del almacenamiento disponible dentro de una
// transacción de reserva. Todas sus operaciones corren en el scope de la
// misma transacción: el lock tomado por LockVaccine se libera recién en
// commit o rollback.
type Ledger interface {
	// LockVaccine toma el lock exclusivo por fila de la vacuna y la
	// devuelve. Serializa todo intento de reserva concurrente sobre la
	// misma vacuna; vacunas distintas nunca se bloquean entre sí.
	// Falla con ErrVaccineNotFound (no existe o soft-deleted) o con
	// ErrLockTimeout si la espera supera el deadline del contexto.
	LockVaccine(ctx context.Context, vaccineID string) (vaccines.Vaccine, error)

	// CountReserved cuenta schedulings activos en SCHEDULED o CONFIRMED
	// para la vacuna. Se recalcula en cada intento, nunca se cachea.
	CountReserved(ctx context.Context, vaccineID string) (int, error)

	// ActiveByDose busca el scheduling activo (no cancelado, no borrado)
	// para (userID, vaccineID, doseNumber).
	ActiveByDose(ctx context.Context, userID, vaccineID string, doseNumber int) (Scheduling, bool, error)

	// Insert agrega la fila nueva dentro de la transacción.
	Insert(ctx context.Context, s Scheduling) error
}

type Repository interface {
	// InTx ejecuta fn dentro de una transacción atómica. Si fn devuelve
	// error se hace rollback (sin escrituras parciales, lock liberado);
	// si devuelve nil se hace commit.
	InTx(ctx context.Context, fn func(led Ledger) error) error

	GetByID(ctx context.Context, id string) (Scheduling, error)
	Update(ctx context.Context, s Scheduling) error
	ListByUser(ctx context.Context, userID string) ([]Scheduling, error)

	// CountReserved fuera de transacción: respaldo de la vista de stock.
	CountReserved(ctx context.Context, vaccineID string) (int, error)

	InsertApplication(ctx context.Context, a Application) error
}
