package notifications

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vaccination-clinic/internal/domain/schedulings"
	"vaccination-clinic/internal/domain/users"
	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/platform/eventbus"
)

// AdminDirectory resuelve destinatarios administrativos para las alertas
// de inventario (stock bajo, lotes por vencer).
type AdminDirectory interface {
	ListByRole(ctx context.Context, role users.Role) ([]users.User, error)
}

// Bootstrap registra todos los suscriptores del sistema en el bus. Se
// llama una sola vez al arranque del proceso; un evento publicado antes
// (o sin suscriptor) se pierde, no hay replay.
func Bootstrap(bus *eventbus.Bus, svc *Service, admins AdminDirectory, log *zap.Logger) {
	bus.Subscribe(schedulings.EventCreated, "notifications.scheduling_created",
		onSchedulingCreated(svc))
	bus.Subscribe(schedulings.EventNurseReassigned, "notifications.nurse_reassigned",
		onNurseReassigned(svc))
	bus.Subscribe(schedulings.EventCancelled, "notifications.scheduling_cancelled",
		onSchedulingCancelled(svc))
	bus.Subscribe(schedulings.EventCompleted, "notifications.scheduling_completed",
		onSchedulingCompleted(svc))
	bus.Subscribe(vaccines.EventLowStock, "notifications.low_stock",
		onLowStock(svc, admins))
	bus.Subscribe(vaccines.EventBatchExpiring, "notifications.batch_expiring",
		onBatchExpiring(svc, admins))

	log.Info("notification subscribers registered")
}

func onSchedulingCreated(svc *Service) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(schedulings.Created)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}
		_, err := svc.Create(ctx, CreateInput{
			UserID: data.UserID,
			Title:  "Vaccination scheduled",
			Message: fmt.Sprintf("Dose %d scheduled for %s",
				data.DoseNumber, data.ScheduledDate.Format("2006-01-02")),
			Priority: evt.Priority,
		})
		return err
	}
}

func onNurseReassigned(svc *Service) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(schedulings.NurseReassigned)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}

		// Se avisa a la nurse nueva siempre; a la anterior solo si había.
		if _, err := svc.Create(ctx, CreateInput{
			UserID: data.NewNurseID,
			Title:  "Appointment assigned",
			Message: fmt.Sprintf("You were assigned an appointment on %s",
				data.ScheduledDate.Format("2006-01-02")),
		}); err != nil {
			return err
		}
		if data.OldNurseID != "" {
			if _, err := svc.Create(ctx, CreateInput{
				UserID:  data.OldNurseID,
				Title:   "Appointment reassigned",
				Message: "An appointment previously assigned to you was reassigned",
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func onSchedulingCancelled(svc *Service) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(schedulings.Cancelled)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}
		_, err := svc.Create(ctx, CreateInput{
			UserID:  data.UserID,
			Title:   "Vaccination cancelled",
			Message: fmt.Sprintf("Your scheduling for dose %d was cancelled", data.DoseNumber),
		})
		return err
	}
}

func onSchedulingCompleted(svc *Service) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(schedulings.Completed)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}
		_, err := svc.Create(ctx, CreateInput{
			UserID:  data.UserID,
			Title:   "Dose applied",
			Message: fmt.Sprintf("Dose %d was applied", data.DoseNumber),
		})
		return err
	}
}

func onLowStock(svc *Service, admins AdminDirectory) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(vaccines.LowStock)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}

		recipients, err := admins.ListByRole(ctx, users.RoleAdmin)
		if err != nil {
			return err
		}
		for _, u := range recipients {
			if _, err := svc.Create(ctx, CreateInput{
				UserID: u.ID,
				Title:  "Low stock",
				Message: fmt.Sprintf("%s has %d doses (minimum %d)",
					data.VaccineName, data.TotalStock, data.MinStockLevel),
				Priority: eventbus.PriorityHigh,
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func onBatchExpiring(svc *Service, admins AdminDirectory) eventbus.Handler {
	return func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(vaccines.BatchExpiring)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt.Data, evt.Type)
		}

		recipients, err := admins.ListByRole(ctx, users.RoleAdmin)
		if err != nil {
			return err
		}
		for _, u := range recipients {
			if _, err := svc.Create(ctx, CreateInput{
				UserID: u.ID,
				Title:  "Batch expiring",
				Message: fmt.Sprintf("Lot %s of %s (%d doses) expires on %s",
					data.LotNumber, data.VaccineName, data.Quantity,
					data.ExpiresAt.Format("2006-01-02")),
			}); err != nil {
				return err
			}
		}
		return nil
	}
}
