package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"vaccination-clinic/internal/domain/schedulings"
	"vaccination-clinic/internal/domain/vaccines"
)

// SchedulingRepo guarda schedulings en memoria y emula la transacción
// de reserva: el lock por vacuna lo aporta el VaccineRepo y las
// escrituras quedan en staging hasta el commit.
type SchedulingRepo struct {
	mu   sync.RWMutex
	byID map[string]schedulings.Scheduling
	apps map[string]schedulings.Application

	vaccines *VaccineRepo
}

func NewSchedulingRepo(vaccineRepo *VaccineRepo) *SchedulingRepo {
	return &SchedulingRepo{
		byID:     make(map[string]schedulings.Scheduling),
		apps:     make(map[string]schedulings.Application),
		vaccines: vaccineRepo,
	}
}

// memTx es la "transacción": acumula inserts y los locks tomados; al
// terminar fn se hace commit (aplica staging) o rollback (lo descarta),
// y recién ahí se liberan los locks.
type memTx struct {
	repo     *SchedulingRepo
	staged   []schedulings.Scheduling
	releases []func()
}

func (r *SchedulingRepo) InTx(ctx context.Context, fn func(led schedulings.Ledger) error) error {
	tx := &memTx{repo: r}
	defer func() {
		for _, release := range tx.releases {
			release()
		}
	}()

	if err := fn(tx); err != nil {
		tx.staged = nil // rollback: sin escrituras parciales
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range tx.staged {
		r.byID[s.ID] = s
	}
	return nil
}

func (t *memTx) LockVaccine(ctx context.Context, vaccineID string) (vaccines.Vaccine, error) {
	release, err := t.repo.vaccines.acquireRow(ctx, vaccineID)
	if err != nil {
		return vaccines.Vaccine{}, schedulings.ErrLockTimeout
	}
	t.releases = append(t.releases, release)

	v, err := t.repo.vaccines.GetByID(ctx, vaccineID)
	if err != nil || v.Deleted() {
		return vaccines.Vaccine{}, schedulings.ErrVaccineNotFound
	}
	return v, nil
}

func (t *memTx) CountReserved(ctx context.Context, vaccineID string) (int, error) {
	count, err := t.repo.CountReserved(ctx, vaccineID)
	if err != nil {
		return 0, err
	}
	for _, s := range t.staged {
		if s.VaccineID == vaccineID && s.Reserved() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ActiveByDose(ctx context.Context, userID, vaccineID string, doseNumber int) (schedulings.Scheduling, bool, error) {
	for _, s := range t.staged {
		if s.UserID == userID && s.VaccineID == vaccineID && s.DoseNumber == doseNumber && s.Active() {
			return s, true, nil
		}
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	for _, s := range t.repo.byID {
		if s.UserID == userID && s.VaccineID == vaccineID && s.DoseNumber == doseNumber && s.Active() {
			return s, true, nil
		}
	}
	return schedulings.Scheduling{}, false, nil
}

func (t *memTx) Insert(ctx context.Context, s schedulings.Scheduling) error {
	if s.ID == "" {
		return errors.New("scheduling id required")
	}
	t.staged = append(t.staged, s)
	return nil
}

func (r *SchedulingRepo) GetByID(ctx context.Context, id string) (schedulings.Scheduling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return schedulings.Scheduling{}, schedulings.ErrNotFound
	}
	return s, nil
}

func (r *SchedulingRepo) Update(ctx context.Context, s schedulings.Scheduling) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID]; !ok {
		return schedulings.ErrNotFound
	}
	r.byID[s.ID] = s
	return nil
}

func (r *SchedulingRepo) ListByUser(ctx context.Context, userID string) ([]schedulings.Scheduling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schedulings.Scheduling, 0)
	for _, s := range r.byID {
		if s.UserID == userID && s.DeletedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (r *SchedulingRepo) CountReserved(ctx context.Context, vaccineID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.byID {
		if s.VaccineID == vaccineID && s.Reserved() {
			count++
		}
	}
	return count, nil
}

func (r *SchedulingRepo) InsertApplication(ctx context.Context, a schedulings.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == "" {
		return errors.New("application id required")
	}
	if _, exists := r.apps[a.ID]; exists {
		return errors.New("application already exists")
	}
	r.apps[a.ID] = a
	return nil
}
