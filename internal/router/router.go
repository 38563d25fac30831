package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vaccination-clinic/internal/auth"
	"vaccination-clinic/internal/domain/notifications"
	"vaccination-clinic/internal/domain/schedulings"
	"vaccination-clinic/internal/domain/users"
	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/middleware"
)

type Options struct {
	JWT *auth.JWTService // nil => modo dev (headers X-Debug-*)

	Users         *users.Service
	Vaccines      *vaccines.Service
	Schedulings   *schedulings.Service
	Notifications *notifications.Service
}

// NewRouter monta middleware y rutas. El armado de repos/servicios lo
// hace main: acá no hay lookups ambientales.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.JWT))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	users.RegisterRoutes(r, opts.Users)
	vaccines.RegisterRoutes(r, opts.Vaccines, stockHandler(opts.Schedulings))
	schedulings.RegisterRoutes(r, opts.Schedulings)
	notifications.RegisterRoutes(r, opts.Notifications)

	return r
}

type stockResponse struct {
	VaccineID     string `json:"vaccine_id"`
	TotalStock    int    `json:"total_stock"`
	ReservedCount int    `json:"reserved_count"`
	Available     int    `json:"available"`
}

// stockHandler compone la vista de stock: la vacuna vive en el catálogo
// pero el conteo de reservas lo conoce el módulo de schedulings.
func stockHandler(svc *schedulings.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Availability(r.Context(), chi.URLParam(r, "vaccineID"))
		if err != nil {
			if errors.Is(err, schedulings.ErrVaccineNotFound) {
				http.Error(w, "vaccine not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stockResponse{
			VaccineID:     view.VaccineID,
			TotalStock:    view.TotalStock,
			ReservedCount: view.ReservedCount,
			Available:     view.Available,
		})
	}
}
