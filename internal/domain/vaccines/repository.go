package vaccines

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, v Vaccine) error
	GetByID(ctx context.Context, id string) (Vaccine, error)
	List(ctx context.Context) ([]Vaccine, error)
	Update(ctx context.Context, v Vaccine) error
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// AdjustStock suma delta (puede ser negativo) a total_stock de forma
	// atómica. Falla con ErrStockUnderflow si el resultado quedaría < 0.
	AdjustStock(ctx context.Context, id string, delta int) error

	CreateBatch(ctx context.Context, b Batch) error
	ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]Batch, error)

	// ListBelowMinStock devuelve vacunas activas con total_stock < min_stock_level.
	ListBelowMinStock(ctx context.Context) ([]Vaccine, error)
}
