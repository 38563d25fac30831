package vaccines

import "time"

const (
	EventLowStock      = "vaccine.low_stock"
	EventBatchExpiring = "batch.expiring"
)

// LowStock es el payload de vaccine.low_stock.
type LowStock struct {
	VaccineID     string
	VaccineName   string
	TotalStock    int
	MinStockLevel int
}

// BatchExpiring es el payload de batch.expiring.
type BatchExpiring struct {
	BatchID     string
	VaccineID   string
	VaccineName string
	LotNumber   string
	Quantity    int
	ExpiresAt   time.Time
}
