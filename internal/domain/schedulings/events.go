package schedulings

import "time"

const (
	EventCreated         = "scheduling.created"
	EventNurseReassigned = "scheduling.nurse_reassigned"
	EventCancelled       = "scheduling.cancelled"
	EventCompleted       = "scheduling.completed"
)

// Created es el payload de scheduling.created.
type Created struct {
	SchedulingID  string
	UserID        string
	VaccineID     string
	DoseNumber    int
	ScheduledDate time.Time
}

// NurseReassigned lleva la nurse anterior y la nueva; lo consume el
// subsistema de notificaciones.
type NurseReassigned struct {
	SchedulingID  string
	UserID        string
	OldNurseID    string // vacío si no había asignación previa
	NewNurseID    string
	ScheduledDate time.Time
}

// Cancelled es el payload de scheduling.cancelled.
type Cancelled struct {
	SchedulingID string
	UserID       string
	VaccineID    string
	DoseNumber   int
}

// Completed es el payload de scheduling.completed.
type Completed struct {
	SchedulingID  string
	ApplicationID string
	UserID        string
	VaccineID     string
	DoseNumber    int
	AppliedBy     string
}
