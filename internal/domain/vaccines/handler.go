package vaccines

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vaccination-clinic/internal/domain/users"
	"vaccination-clinic/internal/middleware"
)

// RegisterRoutes monta el módulo. stock sirve GET /vaccines/{id}/stock;
// lo aporta el router componiendo con el servicio de schedulings (que es
// quien conoce el conteo de reservas); puede ser nil.
func RegisterRoutes(r chi.Router, svc *Service, stock http.HandlerFunc) {
	r.Route("/vaccines", func(vr chi.Router) {
		vr.Get("/", listHandler(svc))
		vr.Post("/", createHandler(svc))

		vr.Route("/{vaccineID}", func(ir chi.Router) {
			ir.Get("/", getHandler(svc))
			ir.Delete("/", deleteHandler(svc))
			ir.Post("/batches", addStockHandler(svc))
			ir.Post("/stock/remove", removeStockHandler(svc))
			if stock != nil {
				ir.Get("/stock", stock)
			}
		})
	})
}

type createRequest struct {
	Name          string `json:"name"`
	Manufacturer  string `json:"manufacturer"`
	DosesRequired int    `json:"doses_required"`
	IntervalDays  int    `json:"interval_days"`
	MinStockLevel int    `json:"min_stock_level"`
}

type vaccineResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Manufacturer  string    `json:"manufacturer,omitempty"`
	TotalStock    int       `json:"total_stock"`
	DosesRequired int       `json:"doses_required"`
	IntervalDays  int       `json:"interval_days"`
	MinStockLevel int       `json:"min_stock_level"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func createHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}

		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		v, err := svc.Create(r.Context(), CreateInput{
			Name:          req.Name,
			Manufacturer:  req.Manufacturer,
			DosesRequired: req.DosesRequired,
			IntervalDays:  req.IntervalDays,
			MinStockLevel: req.MinStockLevel,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toVaccineResponse(v))
	}
}

func listHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out := make([]vaccineResponse, 0, len(list))
		for _, v := range list {
			out = append(out, toVaccineResponse(v))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.GetByID(r.Context(), chi.URLParam(r, "vaccineID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVaccineResponse(v))
	}
}

func deleteHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}
		if err := svc.Delete(r.Context(), chi.URLParam(r, "vaccineID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type addStockRequest struct {
	LotNumber string `json:"lot_number"`
	Quantity  int    `json:"quantity"`
	ExpiresAt string `json:"expires_at"` // RFC3339
}

type batchResponse struct {
	ID        string    `json:"id"`
	VaccineID string    `json:"vaccine_id"`
	LotNumber string    `json:"lot_number"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func addStockHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}

		var req addStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			http.Error(w, "expires_at must be RFC3339", http.StatusBadRequest)
			return
		}

		b, err := svc.AddStock(r.Context(), AddStockInput{
			VaccineID: chi.URLParam(r, "vaccineID"),
			LotNumber: req.LotNumber,
			Quantity:  req.Quantity,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, batchResponse{
			ID:        b.ID,
			VaccineID: b.VaccineID,
			LotNumber: b.LotNumber,
			Quantity:  b.Quantity,
			ExpiresAt: b.ExpiresAt,
			CreatedAt: b.CreatedAt,
		})
	}
}

type removeStockRequest struct {
	Quantity int `json:"quantity"`
}

func removeStockHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}

		var req removeStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if err := svc.RemoveStock(r.Context(), chi.URLParam(r, "vaccineID"), req.Quantity); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || claims.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if users.Role(claims.Role) != users.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrStockUnderflow):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toVaccineResponse(v Vaccine) vaccineResponse {
	return vaccineResponse{
		ID:            v.ID,
		Name:          v.Name,
		Manufacturer:  v.Manufacturer,
		TotalStock:    v.TotalStock,
		DosesRequired: v.DosesRequired,
		IntervalDays:  v.IntervalDays,
		MinStockLevel: v.MinStockLevel,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

// writeJSON está duplicado intencionalmente en los handlers de cada módulo
// para no crear helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
