package schedulings

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("scheduling not found")

	// Errores de la transacción de reserva (pasos 3-6 del protocolo).
	ErrVaccineNotFound     = errors.New("vaccine not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrDuplicateScheduling = errors.New("active scheduling already exists for this dose")
	ErrMissingPreviousDose = errors.New("previous dose has no scheduling")
	ErrInvalidDate         = errors.New("scheduled date is invalid")
	ErrInvalidDoseNumber   = errors.New("dose number out of range")

	// Violaciones de máquina de estados.
	ErrAlreadyCompleted = errors.New("scheduling already completed")
	ErrBadState         = errors.New("invalid state transition")

	// ErrLockTimeout es de infraestructura y reintentable: la reserva no
	// dejó estado parcial, el llamador puede repetir el intento completo.
	ErrLockTimeout = errors.New("timed out waiting for vaccine lock")
)

// InsufficientStockError lleva los contadores observados bajo el lock,
// para diagnóstico. Unwrap permite errors.Is(err, ErrInsufficientStock).
type InsufficientStockError struct {
	VaccineID     string
	TotalStock    int
	ReservedCount int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for vaccine %s: total=%d reserved=%d",
		e.VaccineID, e.TotalStock, e.ReservedCount)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Retryable reporta si el error admite reintentar la reserva completa.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
