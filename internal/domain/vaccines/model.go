package vaccines

import "time"

// Vaccine es la entidad que porta el ledger de stock. TotalStock solo
// lo mutan las operaciones de lote (AddStock/RemoveStock) y el consumo
// por aplicación; el agendamiento nunca lo escribe.
type Vaccine struct {
	ID           string
	Name         string
	Manufacturer string

	TotalStock    int
	DosesRequired int
	IntervalDays  int
	MinStockLevel int

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (v Vaccine) Deleted() bool {
	return v.DeletedAt != nil
}

// Batch es un ingreso físico de dosis con fecha de vencimiento.
type Batch struct {
	ID        string
	VaccineID string
	LotNumber string
	Quantity  int
	ExpiresAt time.Time
	CreatedAt time.Time
}
