package notifications

import (
	"time"

	"vaccination-clinic/internal/platform/eventbus"
)

// Notification es la fila in-app que crean los suscriptores del bus.
// El contenido se mantiene mínimo a propósito: el formateo rico de
// mensajes queda fuera de este core.
type Notification struct {
	ID      string
	UserID  string
	Title   string
	Message string

	Channel  eventbus.Channel
	Priority eventbus.Priority

	Read      bool
	CreatedAt time.Time
}
