package schedulings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/platform/eventbus"
)

// -------------------------
// Test repo (in-memory, single-threaded; las propiedades de
// concurrencia se prueban contra el adaptador memory)
// -------------------------

type testRepo struct {
	vaccines map[string]vaccines.Vaccine
	byID     map[string]Scheduling
	apps     map[string]Application

	lockErr error // fuerza fallo de adquisición de lock
}

func newTestRepo() *testRepo {
	return &testRepo{
		vaccines: map[string]vaccines.Vaccine{},
		byID:     map[string]Scheduling{},
		apps:     map[string]Application{},
	}
}

func (r *testRepo) InTx(ctx context.Context, fn func(led Ledger) error) error {
	return fn(r)
}

func (r *testRepo) LockVaccine(ctx context.Context, vaccineID string) (vaccines.Vaccine, error) {
	if r.lockErr != nil {
		return vaccines.Vaccine{}, r.lockErr
	}
	v, ok := r.vaccines[vaccineID]
	if !ok || v.Deleted() {
		return vaccines.Vaccine{}, ErrVaccineNotFound
	}
	return v, nil
}

func (r *testRepo) CountReserved(ctx context.Context, vaccineID string) (int, error) {
	count := 0
	for _, s := range r.byID {
		if s.VaccineID == vaccineID && s.Reserved() {
			count++
		}
	}
	return count, nil
}

func (r *testRepo) ActiveByDose(ctx context.Context, userID, vaccineID string, doseNumber int) (Scheduling, bool, error) {
	for _, s := range r.byID {
		if s.UserID == userID && s.VaccineID == vaccineID && s.DoseNumber == doseNumber && s.Active() {
			return s, true, nil
		}
	}
	return Scheduling{}, false, nil
}

func (r *testRepo) Insert(ctx context.Context, s Scheduling) error {
	r.byID[s.ID] = s
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Scheduling, error) {
	s, ok := r.byID[id]
	if !ok {
		return Scheduling{}, ErrNotFound
	}
	return s, nil
}

func (r *testRepo) Update(ctx context.Context, s Scheduling) error {
	if _, ok := r.byID[s.ID]; !ok {
		return ErrNotFound
	}
	r.byID[s.ID] = s
	return nil
}

func (r *testRepo) ListByUser(ctx context.Context, userID string) ([]Scheduling, error) {
	out := make([]Scheduling, 0)
	for _, s := range r.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *testRepo) InsertApplication(ctx context.Context, a Application) error {
	r.apps[a.ID] = a
	return nil
}

// testCatalog implementa VaccineStore sobre el mismo mapa de vacunas.
type testCatalog struct {
	repo *testRepo
}

func (c *testCatalog) GetByID(ctx context.Context, id string) (vaccines.Vaccine, error) {
	v, ok := c.repo.vaccines[id]
	if !ok || v.Deleted() {
		return vaccines.Vaccine{}, vaccines.ErrNotFound
	}
	return v, nil
}

func (c *testCatalog) ConsumeDose(ctx context.Context, vaccineID string) error {
	v, ok := c.repo.vaccines[vaccineID]
	if !ok {
		return vaccines.ErrNotFound
	}
	if v.TotalStock-1 < 0 {
		return vaccines.ErrStockUnderflow
	}
	v.TotalStock--
	c.repo.vaccines[vaccineID] = v
	return nil
}

// -------------------------
// Helpers
// -------------------------

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *testRepo) (*Service, *eventbus.Bus) {
	bus := eventbus.New(zap.NewNop())
	svc := NewService(repo, &testCatalog{repo: repo}, bus, zap.NewNop(), 5*time.Second)
	svc.now = func() time.Time { return testNow }
	return svc, bus
}

func seedVaccine(repo *testRepo, id string, totalStock, dosesRequired, intervalDays int) {
	repo.vaccines[id] = vaccines.Vaccine{
		ID:            id,
		Name:          "test vaccine",
		TotalStock:    totalStock,
		DosesRequired: dosesRequired,
		IntervalDays:  intervalDays,
	}
}

func futureDate(days int) time.Time {
	return testNow.AddDate(0, 0, days)
}

// -------------------------
// Reserve
// -------------------------

func TestReserve_CreatesScheduledReservation(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 2, 21)
	svc, _ := newTestService(repo)

	sch, err := svc.Reserve(context.Background(), ReserveInput{
		UserID:        "user-1",
		VaccineID:     "vac-1",
		DoseNumber:    1,
		ScheduledDate: futureDate(3),
		Notes:         "  first dose  ",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, sch.ID)
	assert.Equal(t, StatusScheduled, sch.Status)
	assert.Equal(t, "first dose", sch.Notes)
	assert.Equal(t, 1, sch.DoseNumber)
	assert.True(t, sch.Reserved())
}

func TestReserve_VaccineNotFound(t *testing.T) {
	repo := newTestRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID:        "user-1",
		VaccineID:     "missing",
		DoseNumber:    1,
		ScheduledDate: futureDate(3),
	})

	assert.ErrorIs(t, err, ErrVaccineNotFound)
}

func TestReserve_SoftDeletedVaccineNotFound(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 1, 0)
	deleted := testNow.AddDate(0, 0, -1)
	v := repo.vaccines["vac-1"]
	v.DeletedAt = &deleted
	repo.vaccines["vac-1"] = v
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID:        "user-1",
		VaccineID:     "vac-1",
		DoseNumber:    1,
		ScheduledDate: futureDate(3),
	})

	assert.ErrorIs(t, err, ErrVaccineNotFound)
}

func TestReserve_InsufficientStockCarriesCounters(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 1, 1, 0)
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-2", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})

	require.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.TotalStock)
	assert.Equal(t, 1, stockErr.ReservedCount)
}

func TestReserve_ZeroStockRejects(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 0, 1, 0)
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})

	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserve_DateMustBeStrictlyFuture(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 1, 0)
	svc, _ := newTestService(repo)

	for _, date := range []time.Time{testNow, testNow.Add(-time.Hour)} {
		_, err := svc.Reserve(context.Background(), ReserveInput{
			UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: date,
		})
		assert.ErrorIs(t, err, ErrInvalidDate)
	}
}

func TestReserve_DoseNumberOutOfRange(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 2, 21)
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 3, ScheduledDate: futureDate(1),
	})
	assert.ErrorIs(t, err, ErrInvalidDoseNumber)

	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 0, ScheduledDate: futureDate(1),
	})
	assert.ErrorIs(t, err, ErrInvalidDoseNumber)
}

func TestReserve_DuplicateDoseRejectedUntilCancelled(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 1, 0)
	svc, _ := newTestService(repo)

	first, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(2),
	})
	assert.ErrorIs(t, err, ErrDuplicateScheduling)

	_, err = svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(2),
	})
	assert.NoError(t, err)
}

func TestReserve_SecondDoseRequiresFirst(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 2, 21)
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 2, ScheduledDate: futureDate(30),
	})

	assert.ErrorIs(t, err, ErrMissingPreviousDose)
}

func TestReserve_SecondDoseHonorsInterval(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 2, 21)
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)

	// 20 días después de la dosis 1: por debajo del intervalo de 21.
	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 2, ScheduledDate: futureDate(1 + 20),
	})
	assert.ErrorIs(t, err, ErrInvalidDate)

	// Exactamente 21 días: permitido (intervalo mínimo inclusive).
	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 2, ScheduledDate: futureDate(1 + 21),
	})
	assert.NoError(t, err)
}

func TestReserve_CancelledPreviousDoseDoesNotCount(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 10, 2, 21)
	svc, _ := newTestService(repo)

	first, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 2, ScheduledDate: futureDate(30),
	})
	assert.ErrorIs(t, err, ErrMissingPreviousDose)
}

func TestReserve_LockTimeoutIsRetryable(t *testing.T) {
	repo := newTestRepo()
	repo.lockErr = ErrLockTimeout
	svc, _ := newTestService(repo)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})

	require.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(ErrInsufficientStock))
}

func TestReserve_CancellationFreesCapacity(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 1, 1, 0)
	svc, _ := newTestService(repo)

	first, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)

	// Antes de cancelar: sin capacidad.
	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-2", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)

	// Después de cancelar: la capacidad quedó libre.
	_, err = svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-2", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	assert.NoError(t, err)
}

// -------------------------
// Lifecycle
// -------------------------

func reserveOne(t *testing.T, svc *Service) Scheduling {
	t.Helper()
	sch, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(5),
	})
	require.NoError(t, err)
	return sch
}

func TestConfirm_Transition(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, _ := newTestService(repo)
	sch := reserveOne(t, svc)

	confirmed, err := svc.Confirm(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.Reserved(), "confirmed still counts against stock")

	// Idempotente.
	again, err := svc.Confirm(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)
}

func TestConfirm_CancelledIsTerminal(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, _ := newTestService(repo)
	sch := reserveOne(t, svc)

	_, err := svc.Cancel(context.Background(), sch.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), sch.ID)
	assert.ErrorIs(t, err, ErrBadState)
}

func TestComplete_RecordsApplicationAndConsumesDose(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, _ := newTestService(repo)
	sch := reserveOne(t, svc)

	updated, app, err := svc.Complete(context.Background(), sch.ID, "nurse-9")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, updated.Status)
	assert.False(t, updated.Reserved(), "completed no longer reserves")
	assert.Equal(t, sch.ID, app.SchedulingID)
	assert.Equal(t, "nurse-9", app.AppliedBy)
	assert.Equal(t, 4, repo.vaccines["vac-1"].TotalStock, "physical dose consumed")
	assert.Len(t, repo.apps, 1)
}

func TestCompleted_IsImmutable(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, _ := newTestService(repo)
	sch := reserveOne(t, svc)

	_, _, err := svc.Complete(context.Background(), sch.ID, "nurse-9")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), sch.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = svc.UpdateDate(context.Background(), sch.ID, futureDate(10))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = svc.ReassignNurse(context.Background(), sch.ID, "nurse-2")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = svc.Cancel(context.Background(), sch.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestUpdateDate_RequiresFutureButSkipsIntervalRules(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 2, 21)
	svc, _ := newTestService(repo)

	first, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 1, ScheduledDate: futureDate(1),
	})
	require.NoError(t, err)
	second, err := svc.Reserve(context.Background(), ReserveInput{
		UserID: "user-1", VaccineID: "vac-1", DoseNumber: 2, ScheduledDate: futureDate(22),
	})
	require.NoError(t, err)

	_, err = svc.UpdateDate(context.Background(), first.ID, testNow.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidDate)

	// Mueve la dosis 2 dentro del intervalo: la actualización parcial
	// no re-valida contra los hermanos.
	updated, err := svc.UpdateDate(context.Background(), second.ID, futureDate(2))
	require.NoError(t, err)
	assert.Equal(t, futureDate(2), updated.ScheduledDate)
}

func TestReassignNurse_EmitsOldAndNew(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, bus := newTestService(repo)
	sch := reserveOne(t, svc)

	got := make(chan NurseReassigned, 2)
	bus.Subscribe(EventNurseReassigned, "test", func(ctx context.Context, evt eventbus.Event) error {
		data, ok := evt.Data.(NurseReassigned)
		require.True(t, ok)
		got <- data
		return nil
	})

	_, err := svc.ReassignNurse(context.Background(), sch.ID, "nurse-1")
	require.NoError(t, err)

	select {
	case data := <-got:
		assert.Empty(t, data.OldNurseID)
		assert.Equal(t, "nurse-1", data.NewNurseID)
	case <-time.After(2 * time.Second):
		t.Fatal("nurse_reassigned event not emitted")
	}

	_, err = svc.ReassignNurse(context.Background(), sch.ID, "nurse-2")
	require.NoError(t, err)

	select {
	case data := <-got:
		assert.Equal(t, "nurse-1", data.OldNurseID)
		assert.Equal(t, "nurse-2", data.NewNurseID)
	case <-time.After(2 * time.Second):
		t.Fatal("nurse_reassigned event not emitted")
	}
}

func TestCancel_SoftDeletesAndIsIdempotent(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 5, 1, 0)
	svc, _ := newTestService(repo)
	sch := reserveOne(t, svc)

	cancelled, err := svc.Cancel(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.DeletedAt)
	assert.False(t, cancelled.Reserved())
	assert.False(t, cancelled.Active())

	// Cancelar lo ya cancelado no es error.
	again, err := svc.Cancel(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)
}

// -------------------------
// Availability
// -------------------------

func TestAvailability_ReflectsReservations(t *testing.T) {
	repo := newTestRepo()
	seedVaccine(repo, "vac-1", 3, 1, 0)
	svc, _ := newTestService(repo)

	view, err := svc.Availability(context.Background(), "vac-1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Available)

	_ = reserveOne(t, svc)

	view, err = svc.Availability(context.Background(), "vac-1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalStock)
	assert.Equal(t, 1, view.ReservedCount)
	assert.Equal(t, 2, view.Available)
}

func TestAvailability_UnknownVaccine(t *testing.T) {
	repo := newTestRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Availability(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrVaccineNotFound)
}

func TestInsufficientStockError_Message(t *testing.T) {
	err := &InsufficientStockError{VaccineID: "vac-1", TotalStock: 2, ReservedCount: 2}
	assert.Equal(t, "insufficient stock for vaccine vac-1: total=2 reserved=2", err.Error())
	assert.True(t, errors.Is(err, ErrInsufficientStock))
}
