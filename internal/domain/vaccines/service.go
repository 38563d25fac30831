package vaccines

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vaccination-clinic/internal/platform/eventbus"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("vaccine not found")
	ErrStockUnderflow = errors.New("stock cannot go negative")
)

type Service struct {
	repo Repository
	bus  *eventbus.Bus
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, bus *eventbus.Bus, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log,
		now:  time.Now,
	}
}

type CreateInput struct {
	Name          string
	Manufacturer  string
	DosesRequired int
	IntervalDays  int
	MinStockLevel int
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Vaccine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.DosesRequired < 1 || in.IntervalDays < 0 || in.MinStockLevel < 0 {
		return Vaccine{}, ErrInvalidInput
	}

	now := s.now()
	v := Vaccine{
		ID:            uuid.NewString(),
		Name:          name,
		Manufacturer:  strings.TrimSpace(in.Manufacturer),
		TotalStock:    0,
		DosesRequired: in.DosesRequired,
		IntervalDays:  in.IntervalDays,
		MinStockLevel: in.MinStockLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return Vaccine{}, err
	}
	return v, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Vaccine, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Vaccine{}, ErrInvalidInput
	}
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Vaccine{}, err
	}
	if v.Deleted() {
		return Vaccine{}, ErrNotFound
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]Vaccine, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	return s.repo.SoftDelete(ctx, id, s.now())
}

type AddStockInput struct {
	VaccineID string
	LotNumber string
	Quantity  int
	ExpiresAt time.Time
}

// AddStock registra un lote nuevo y aumenta total_stock.
func (s *Service) AddStock(ctx context.Context, in AddStockInput) (Batch, error) {
	if strings.TrimSpace(in.VaccineID) == "" || in.Quantity <= 0 || in.ExpiresAt.IsZero() {
		return Batch{}, ErrInvalidInput
	}
	if _, err := s.GetByID(ctx, in.VaccineID); err != nil {
		return Batch{}, err
	}

	b := Batch{
		ID:        uuid.NewString(),
		VaccineID: in.VaccineID,
		LotNumber: strings.TrimSpace(in.LotNumber),
		Quantity:  in.Quantity,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	if err := s.repo.AdjustStock(ctx, in.VaccineID, in.Quantity); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// RemoveStock descuenta dosis del ledger (descarte de lote vencido, rotura).
func (s *Service) RemoveStock(ctx context.Context, vaccineID string, quantity int) error {
	if strings.TrimSpace(vaccineID) == "" || quantity <= 0 {
		return ErrInvalidInput
	}
	if _, err := s.GetByID(ctx, vaccineID); err != nil {
		return err
	}
	return s.repo.AdjustStock(ctx, vaccineID, -quantity)
}

// ConsumeDose descuenta la dosis física al registrar una aplicación.
func (s *Service) ConsumeDose(ctx context.Context, vaccineID string) error {
	return s.repo.AdjustStock(ctx, vaccineID, -1)
}

// ScanLowStock publica vaccine.low_stock por cada vacuna bajo su mínimo.
// Usa modo wait para que el job pueda loguear fallos de suscriptores.
func (s *Service) ScanLowStock(ctx context.Context) (int, error) {
	low, err := s.repo.ListBelowMinStock(ctx)
	if err != nil {
		return 0, err
	}

	for _, v := range low {
		res := s.bus.PublishAndWait(ctx, eventbus.Event{
			Type:     EventLowStock,
			Channels: []eventbus.Channel{eventbus.ChannelInApp, eventbus.ChannelEmail},
			Priority: eventbus.PriorityHigh,
			Origin:   "vaccines.scan_low_stock",
			Data: LowStock{
				VaccineID:     v.ID,
				VaccineName:   v.Name,
				TotalStock:    v.TotalStock,
				MinStockLevel: v.MinStockLevel,
			},
		})
		if !res.Ok() {
			s.log.Warn("low stock alert partially delivered",
				zap.String("vaccine_id", v.ID),
				zap.Int("failed_handlers", len(res.Failed)),
			)
		}
	}
	return len(low), nil
}

// ScanExpiringBatches publica batch.expiring por cada lote que vence
// dentro de la ventana dada.
func (s *Service) ScanExpiringBatches(ctx context.Context, windowDays int) (int, error) {
	if windowDays <= 0 {
		return 0, ErrInvalidInput
	}

	cutoff := s.now().AddDate(0, 0, windowDays)
	batches, err := s.repo.ListBatchesExpiringBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, b := range batches {
		v, err := s.repo.GetByID(ctx, b.VaccineID)
		if err != nil {
			continue
		}

		res := s.bus.PublishAndWait(ctx, eventbus.Event{
			Type:     EventBatchExpiring,
			Channels: []eventbus.Channel{eventbus.ChannelInApp},
			Priority: eventbus.PriorityNormal,
			Origin:   "vaccines.scan_expiring_batches",
			Data: BatchExpiring{
				BatchID:     b.ID,
				VaccineID:   b.VaccineID,
				VaccineName: v.Name,
				LotNumber:   b.LotNumber,
				Quantity:    b.Quantity,
				ExpiresAt:   b.ExpiresAt,
			},
		})
		if !res.Ok() {
			s.log.Warn("batch expiry alert partially delivered",
				zap.String("batch_id", b.ID),
				zap.Int("failed_handlers", len(res.Failed)),
			)
		}
	}
	return len(batches), nil
}
