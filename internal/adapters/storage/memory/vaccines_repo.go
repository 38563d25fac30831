package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vaccination-clinic/internal/domain/vaccines"
)

// VaccineRepo guarda vacunas y lotes en memoria. Mantiene además la
// tabla de locks por vacuna que usa el repo de schedulings para emular
// el lock exclusivo por fila de Postgres.
type VaccineRepo struct {
	mu      sync.RWMutex
	byID    map[string]vaccines.Vaccine
	batches map[string]vaccines.Batch

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

func NewVaccineRepo() *VaccineRepo {
	return &VaccineRepo{
		byID:    make(map[string]vaccines.Vaccine),
		batches: make(map[string]vaccines.Batch),
		locks:   make(map[string]chan struct{}),
	}
}

// lockFor devuelve el canal-mutex de la vacuna, creándolo si no existe.
// Capacidad 1: enviar adquiere, recibir libera.
func (r *VaccineRepo) lockFor(vaccineID string) chan struct{} {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	ch, ok := r.locks[vaccineID]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[vaccineID] = ch
	}
	return ch
}

// acquireRow bloquea hasta tomar el lock de la vacuna o hasta que el
// contexto venza. Devuelve la función de release, a llamar exactamente
// una vez (la llama el commit/rollback de la transacción).
func (r *VaccineRepo) acquireRow(ctx context.Context, vaccineID string) (release func(), err error) {
	ch := r.lockFor(vaccineID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *VaccineRepo) Create(ctx context.Context, v vaccines.Vaccine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ID == "" {
		return errors.New("vaccine id required")
	}
	if _, exists := r.byID[v.ID]; exists {
		return errors.New("vaccine already exists")
	}
	r.byID[v.ID] = v
	return nil
}

func (r *VaccineRepo) GetByID(ctx context.Context, id string) (vaccines.Vaccine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byID[id]
	if !ok {
		return vaccines.Vaccine{}, vaccines.ErrNotFound
	}
	return v, nil
}

func (r *VaccineRepo) List(ctx context.Context) ([]vaccines.Vaccine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]vaccines.Vaccine, 0, len(r.byID))
	for _, v := range r.byID {
		if !v.Deleted() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *VaccineRepo) Update(ctx context.Context, v vaccines.Vaccine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[v.ID]; !ok {
		return vaccines.ErrNotFound
	}
	r.byID[v.ID] = v
	return nil
}

func (r *VaccineRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok || v.Deleted() {
		return vaccines.ErrNotFound
	}
	v.DeletedAt = &at
	v.UpdatedAt = at
	r.byID[id] = v
	return nil
}

func (r *VaccineRepo) AdjustStock(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok || v.Deleted() {
		return vaccines.ErrNotFound
	}
	if v.TotalStock+delta < 0 {
		return vaccines.ErrStockUnderflow
	}
	v.TotalStock += delta
	v.UpdatedAt = time.Now()
	r.byID[id] = v
	return nil
}

func (r *VaccineRepo) CreateBatch(ctx context.Context, b vaccines.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == "" {
		return errors.New("batch id required")
	}
	if _, exists := r.batches[b.ID]; exists {
		return errors.New("batch already exists")
	}
	r.batches[b.ID] = b
	return nil
}

func (r *VaccineRepo) ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]vaccines.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]vaccines.Batch, 0)
	for _, b := range r.batches {
		if b.ExpiresAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *VaccineRepo) ListBelowMinStock(ctx context.Context) ([]vaccines.Vaccine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]vaccines.Vaccine, 0)
	for _, v := range r.byID {
		if !v.Deleted() && v.MinStockLevel > 0 && v.TotalStock < v.MinStockLevel {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
