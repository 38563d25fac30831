package eventbus

import "time"

// Channel indica el destino de la notificación derivada del evento.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Event es efímero: lo construye el publicador, lo consumen los
// suscriptores registrados en ese momento y se descarta. No hay
// persistencia ni replay.
type Event struct {
	Type      string
	Channels  []Channel
	Priority  Priority
	Data      any
	Origin    string
	EmittedAt time.Time
}

// HandlerFailure identifica al suscriptor que falló y su causa.
type HandlerFailure struct {
	Handler string
	Err     error
}

// EmitResult enumera qué suscriptores terminaron bien y cuáles no
// (solo disponible en modo wait-for-completion).
type EmitResult struct {
	Succeeded []string
	Failed    []HandlerFailure
}

func (r EmitResult) Ok() bool {
	return len(r.Failed) == 0
}
