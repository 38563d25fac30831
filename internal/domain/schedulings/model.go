package schedulings

import "time"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Scheduling es la entidad de reserva: una fila activa consume una
// unidad del stock disponible de su vacuna.
type Scheduling struct {
	ID              string
	UserID          string
	VaccineID       string
	AssignedNurseID string // vacío = sin asignar

	DoseNumber    int
	ScheduledDate time.Time
	Status        Status
	Notes         string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Active: no cancelado ni soft-deleted. Es el predicado de los chequeos
// de duplicado y de dosis previa.
func (s Scheduling) Active() bool {
	return s.DeletedAt == nil && s.Status != StatusCancelled
}

// Reserved: cuenta contra el stock. COMPLETED ya consumió la dosis
// física (total_stock bajó), así que deja de reservar.
func (s Scheduling) Reserved() bool {
	return s.DeletedAt == nil && (s.Status == StatusScheduled || s.Status == StatusConfirmed)
}

// Application es el registro terminal de administración de una dosis.
// Un Scheduling produce a lo sumo una Application.
type Application struct {
	ID           string
	SchedulingID string
	UserID       string
	VaccineID    string
	DoseNumber   int
	AppliedBy    string // nurse que administró
	AppliedAt    time.Time
}

// StockView es la foto del ledger de una vacuna. Fuera de la transacción
// de reserva es solo informativa: el valor autoritativo se recalcula
// bajo el lock exclusivo.
type StockView struct {
	VaccineID     string
	TotalStock    int
	ReservedCount int
	Available     int
}
