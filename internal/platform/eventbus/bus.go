package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler procesa un evento. El error devuelto nunca llega al publicador
// en modo fire-and-forget; en modo wait se reporta en EmitResult.
type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	name string
	fn   Handler
}

// Bus es el despachador in-process: mapa de tipo de evento a suscripciones
// nombradas. Las funciones no son comparables en Go, así que la identidad
// de un suscriptor es su nombre (único por tipo de evento).
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	log  *zap.Logger
}

func New(log *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
		log:  log,
	}
}

// Subscribe registra fn bajo (eventType, name). Si ya existe una
// suscripción con ese nombre, la reemplaza.
func (b *Bus) Subscribe(eventType, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs[eventType] {
		if s.name == name {
			b.subs[eventType][i].fn = fn
			return
		}
	}
	b.subs[eventType] = append(b.subs[eventType], subscription{name: name, fn: fn})
}

// Unsubscribe quita la suscripción (eventType, name). Si no existe,
// solo deja warning: no es un error del llamador.
func (b *Bus) Unsubscribe(eventType, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[eventType]
	for i, s := range list {
		if s.name == name {
			b.subs[eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
	b.log.Warn("unsubscribe: handler not registered",
		zap.String("event_type", eventType),
		zap.String("handler", name),
	)
}

// snapshot copia la lista de suscriptores para que altas/bajas concurrentes
// no afecten una emisión en curso.
func (b *Bus) snapshot(eventType string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.subs[eventType]
	if len(list) == 0 {
		return nil
	}
	out := make([]subscription, len(list))
	copy(out, list)
	return out
}

// Publish emite en modo fire-and-forget: retorna en cuanto los handlers
// quedan lanzados. Fallos y pánicos de handlers solo se loguean.
// Un evento sin suscriptores se pierde (trade-off documentado del MVP).
func (b *Bus) Publish(ctx context.Context, evt Event) {
	subs := b.snapshot(evt.Type)
	if len(subs) == 0 {
		return
	}
	if evt.EmittedAt.IsZero() {
		evt.EmittedAt = time.Now()
	}

	// El request que publica puede terminar antes que los handlers;
	// se desliga de su cancelación pero se conservan los values.
	bg := context.WithoutCancel(ctx)

	for _, s := range subs {
		go func(s subscription) {
			if err := b.invoke(bg, s, evt); err != nil {
				b.log.Error("event handler failed",
					zap.String("event_type", evt.Type),
					zap.String("handler", s.name),
					zap.Error(err),
				)
			}
		}(s)
	}
}

// PublishAndWait emite y suspende al publicador hasta que todos los
// handlers terminen (bien o mal). Los handlers corren concurrentes
// entre sí; un fallo nunca impide la ejecución del resto.
func (b *Bus) PublishAndWait(ctx context.Context, evt Event) EmitResult {
	subs := b.snapshot(evt.Type)
	if len(subs) == 0 {
		return EmitResult{}
	}
	if evt.EmittedAt.IsZero() {
		evt.EmittedAt = time.Now()
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		res EmitResult
	)

	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()

			err := b.invoke(ctx, s, evt)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, HandlerFailure{Handler: s.name, Err: err})
			} else {
				res.Succeeded = append(res.Succeeded, s.name)
			}
		}(s)
	}
	wg.Wait()

	// Orden estable para logs y tests.
	sort.Strings(res.Succeeded)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Handler < res.Failed[j].Handler })

	for _, f := range res.Failed {
		b.log.Error("event handler failed",
			zap.String("event_type", evt.Type),
			zap.String("handler", f.Handler),
			zap.Error(f.Err),
		)
	}
	return res
}

// invoke aísla cada invocación: un pánico del handler se convierte en
// error y no tumba al publicador ni al resto de handlers.
func (b *Bus) invoke(ctx context.Context, s subscription, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.fn(ctx, evt)
}
