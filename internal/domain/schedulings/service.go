package schedulings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/platform/eventbus"
)

// VaccineStore es lo único que este módulo necesita del catálogo:
// leer la vacuna para la vista de stock y descontar la dosis física
// al registrar una aplicación.
type VaccineStore interface {
	GetByID(ctx context.Context, id string) (vaccines.Vaccine, error)
	ConsumeDose(ctx context.Context, vaccineID string) error
}

type Service struct {
	repo     Repository
	catalog  VaccineStore
	bus      *eventbus.Bus
	log      *zap.Logger
	now      func() time.Time
	lockWait time.Duration
}

func NewService(repo Repository, catalog VaccineStore, bus *eventbus.Bus, log *zap.Logger, lockWait time.Duration) *Service {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		bus:      bus,
		log:      log,
		now:      time.Now,
		lockWait: lockWait,
	}
}

type ReserveInput struct {
	UserID        string
	VaccineID     string
	DoseNumber    int
	ScheduledDate time.Time
	Notes         string
}

// Reserve ejecuta la transacción de reserva. El orden de los pasos
// importa para la corrección:
//
//  1. abre la transacción
//  2. toma el lock exclusivo de la vacuna (serializa intentos concurrentes)
//  3. re-verifica que la vacuna exista y no esté borrada
//  4. cuenta las dosis reservadas (SCHEDULED/CONFIRMED activos)
//  5. disponible = total - reservadas; si <= 0 aborta con InsufficientStock
//  6. valida fecha futura, rango de dosis, duplicado y dosis previa + intervalo
//  7. inserta el scheduling en SCHEDULED
//  8. commit (libera el lock)
//
// Cualquier fallo en 3-6 hace rollback: sin escrituras parciales. No hay
// reintento automático; el lock ya serializa los intentos en conflicto.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (Scheduling, error) {
	userID := strings.TrimSpace(in.UserID)
	vaccineID := strings.TrimSpace(in.VaccineID)
	if userID == "" || vaccineID == "" || in.ScheduledDate.IsZero() {
		return Scheduling{}, ErrInvalidInput
	}
	if in.DoseNumber < 1 {
		return Scheduling{}, ErrInvalidDoseNumber
	}

	// Deadline global del intento: una espera de lock que lo exceda
	// aborta con ErrLockTimeout (reintentable).
	ctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	var created Scheduling

	err := s.repo.InTx(ctx, func(led Ledger) error {
		v, err := led.LockVaccine(ctx, vaccineID)
		if err != nil {
			return err
		}

		reserved, err := led.CountReserved(ctx, vaccineID)
		if err != nil {
			return err
		}
		if available := v.TotalStock - reserved; available <= 0 {
			return &InsufficientStockError{
				VaccineID:     vaccineID,
				TotalStock:    v.TotalStock,
				ReservedCount: reserved,
			}
		}

		now := s.now()
		if !in.ScheduledDate.After(now) {
			return ErrInvalidDate
		}
		if in.DoseNumber > v.DosesRequired {
			return ErrInvalidDoseNumber
		}

		if _, exists, err := led.ActiveByDose(ctx, userID, vaccineID, in.DoseNumber); err != nil {
			return err
		} else if exists {
			return ErrDuplicateScheduling
		}

		if in.DoseNumber > 1 {
			prev, exists, err := led.ActiveByDose(ctx, userID, vaccineID, in.DoseNumber-1)
			if err != nil {
				return err
			}
			if !exists {
				return ErrMissingPreviousDose
			}
			if in.ScheduledDate.Before(prev.ScheduledDate.AddDate(0, 0, v.IntervalDays)) {
				return ErrInvalidDate
			}
		}

		created = Scheduling{
			ID:            uuid.NewString(),
			UserID:        userID,
			VaccineID:     vaccineID,
			DoseNumber:    in.DoseNumber,
			ScheduledDate: in.ScheduledDate,
			Status:        StatusScheduled,
			Notes:         strings.TrimSpace(in.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return led.Insert(ctx, created)
	})
	if err != nil {
		return Scheduling{}, err
	}

	s.bus.Publish(ctx, eventbus.Event{
		Type:     EventCreated,
		Channels: []eventbus.Channel{eventbus.ChannelInApp, eventbus.ChannelEmail},
		Priority: eventbus.PriorityNormal,
		Origin:   "schedulings.reserve",
		Data: Created{
			SchedulingID:  created.ID,
			UserID:        created.UserID,
			VaccineID:     created.VaccineID,
			DoseNumber:    created.DoseNumber,
			ScheduledDate: created.ScheduledDate,
		},
	})

	return created, nil
}

// Availability arma la foto del ledger fuera de la transacción. Solo
// informativa: el valor que decide una reserva se recalcula bajo el lock.
func (s *Service) Availability(ctx context.Context, vaccineID string) (StockView, error) {
	vaccineID = strings.TrimSpace(vaccineID)
	if vaccineID == "" {
		return StockView{}, ErrInvalidInput
	}

	v, err := s.catalog.GetByID(ctx, vaccineID)
	if err != nil {
		return StockView{}, ErrVaccineNotFound
	}

	reserved, err := s.repo.CountReserved(ctx, vaccineID)
	if err != nil {
		return StockView{}, err
	}

	return StockView{
		VaccineID:     vaccineID,
		TotalStock:    v.TotalStock,
		ReservedCount: reserved,
		Available:     v.TotalStock - reserved,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Scheduling, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scheduling{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Scheduling, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Confirm pasa SCHEDULED -> CONFIRMED. Idempotente si ya está confirmado.
func (s *Service) Confirm(ctx context.Context, id string) (Scheduling, error) {
	sch, err := s.mutable(ctx, id)
	if err != nil {
		return Scheduling{}, err
	}
	if sch.Status == StatusConfirmed {
		return sch, nil
	}
	if sch.Status != StatusScheduled {
		return Scheduling{}, ErrBadState
	}

	sch.Status = StatusConfirmed
	sch.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sch); err != nil {
		return Scheduling{}, err
	}
	return sch, nil
}

// UpdateDate cambia la fecha. Solo exige fecha estrictamente futura;
// no re-valida intervalo ni orden de dosis contra otros schedulings
// (actualización parcial idempotente).
func (s *Service) UpdateDate(ctx context.Context, id string, newDate time.Time) (Scheduling, error) {
	sch, err := s.mutable(ctx, id)
	if err != nil {
		return Scheduling{}, err
	}

	now := s.now()
	if newDate.IsZero() || !newDate.After(now) {
		return Scheduling{}, ErrInvalidDate
	}

	sch.ScheduledDate = newDate
	sch.UpdatedAt = now
	if err := s.repo.Update(ctx, sch); err != nil {
		return Scheduling{}, err
	}
	return sch, nil
}

// ReassignNurse es la única transición con efecto observable además de
// la persistencia: emite scheduling.nurse_reassigned con la nurse
// anterior y la nueva.
func (s *Service) ReassignNurse(ctx context.Context, id, newNurseID string) (Scheduling, error) {
	newNurseID = strings.TrimSpace(newNurseID)
	if newNurseID == "" {
		return Scheduling{}, ErrInvalidInput
	}

	sch, err := s.mutable(ctx, id)
	if err != nil {
		return Scheduling{}, err
	}

	oldNurseID := sch.AssignedNurseID
	sch.AssignedNurseID = newNurseID
	sch.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sch); err != nil {
		return Scheduling{}, err
	}

	s.bus.Publish(ctx, eventbus.Event{
		Type:     EventNurseReassigned,
		Channels: []eventbus.Channel{eventbus.ChannelInApp},
		Priority: eventbus.PriorityNormal,
		Origin:   "schedulings.reassign_nurse",
		Data: NurseReassigned{
			SchedulingID:  sch.ID,
			UserID:        sch.UserID,
			OldNurseID:    oldNurseID,
			NewNurseID:    newNurseID,
			ScheduledDate: sch.ScheduledDate,
		},
	})

	return sch, nil
}

// Cancel es el soft-delete: marca deleted_at y fuerza CANCELLED. Un
// scheduling cancelado queda fuera del conteo de reservas y de los
// chequeos de duplicado/intervalo, liberando capacidad.
func (s *Service) Cancel(ctx context.Context, id string) (Scheduling, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scheduling{}, ErrInvalidInput
	}

	sch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Scheduling{}, err
	}
	if sch.Status == StatusCompleted {
		return Scheduling{}, ErrAlreadyCompleted
	}
	if !sch.Active() {
		return sch, nil // ya cancelado
	}

	now := s.now()
	sch.Status = StatusCancelled
	sch.DeletedAt = &now
	sch.UpdatedAt = now
	if err := s.repo.Update(ctx, sch); err != nil {
		return Scheduling{}, err
	}

	s.bus.Publish(ctx, eventbus.Event{
		Type:     EventCancelled,
		Channels: []eventbus.Channel{eventbus.ChannelInApp},
		Priority: eventbus.PriorityNormal,
		Origin:   "schedulings.cancel",
		Data: Cancelled{
			SchedulingID: sch.ID,
			UserID:       sch.UserID,
			VaccineID:    sch.VaccineID,
			DoseNumber:   sch.DoseNumber,
		},
	})

	return sch, nil
}

// Complete registra la administración: pasa a COMPLETED, crea la
// Application y descuenta la dosis física del ledger.
func (s *Service) Complete(ctx context.Context, id, appliedBy string) (Scheduling, Application, error) {
	appliedBy = strings.TrimSpace(appliedBy)
	if appliedBy == "" {
		return Scheduling{}, Application{}, ErrInvalidInput
	}

	sch, err := s.mutable(ctx, id)
	if err != nil {
		return Scheduling{}, Application{}, err
	}

	// La dosis física se consume primero: si el ledger quedara en
	// negativo no se completa nada.
	if err := s.catalog.ConsumeDose(ctx, sch.VaccineID); err != nil {
		return Scheduling{}, Application{}, err
	}

	now := s.now()
	sch.Status = StatusCompleted
	sch.UpdatedAt = now
	if err := s.repo.Update(ctx, sch); err != nil {
		return Scheduling{}, Application{}, err
	}

	app := Application{
		ID:           uuid.NewString(),
		SchedulingID: sch.ID,
		UserID:       sch.UserID,
		VaccineID:    sch.VaccineID,
		DoseNumber:   sch.DoseNumber,
		AppliedBy:    appliedBy,
		AppliedAt:    now,
	}
	if err := s.repo.InsertApplication(ctx, app); err != nil {
		return Scheduling{}, Application{}, err
	}

	s.bus.Publish(ctx, eventbus.Event{
		Type:     EventCompleted,
		Channels: []eventbus.Channel{eventbus.ChannelInApp},
		Priority: eventbus.PriorityNormal,
		Origin:   "schedulings.complete",
		Data: Completed{
			SchedulingID:  sch.ID,
			ApplicationID: app.ID,
			UserID:        sch.UserID,
			VaccineID:     sch.VaccineID,
			DoseNumber:    sch.DoseNumber,
			AppliedBy:     appliedBy,
		},
	})

	return sch, app, nil
}

// mutable carga el scheduling y aplica las reglas comunes de mutación:
// COMPLETED es inmutable, CANCELLED es terminal.
func (s *Service) mutable(ctx context.Context, id string) (Scheduling, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scheduling{}, ErrInvalidInput
	}

	sch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Scheduling{}, err
	}
	if sch.Status == StatusCompleted {
		return Scheduling{}, ErrAlreadyCompleted
	}
	if !sch.Active() {
		return Scheduling{}, ErrBadState
	}
	return sch, nil
}
