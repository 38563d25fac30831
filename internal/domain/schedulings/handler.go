package schedulings

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vaccination-clinic/internal/domain/users"
	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/middleware"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/schedulings", func(sr chi.Router) {
		sr.Post("/", reserveHandler(svc))
		sr.Get("/", listMineHandler(svc))

		sr.Route("/{schedulingID}", func(ir chi.Router) {
			ir.Get("/", getHandler(svc))
			ir.Delete("/", cancelHandler(svc))
			ir.Post("/confirm", confirmHandler(svc))
			ir.Post("/complete", completeHandler(svc))
			ir.Patch("/date", updateDateHandler(svc))
			ir.Patch("/nurse", reassignNurseHandler(svc))
		})
	})
}

type reserveRequest struct {
	VaccineID     string `json:"vaccine_id"`
	UserID        string `json:"user_id"` // solo roles privilegiados pueden agendar a terceros
	DoseNumber    int    `json:"dose_number"`
	ScheduledDate string `json:"scheduled_date"` // RFC3339
	Notes         string `json:"notes"`
}

type schedulingResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	VaccineID       string     `json:"vaccine_id"`
	AssignedNurseID string     `json:"assigned_nurse_id,omitempty"`
	DoseNumber      int        `json:"dose_number"`
	ScheduledDate   time.Time  `json:"scheduled_date"`
	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

type stockErrorResponse struct {
	Error         string `json:"error"`
	TotalStock    int    `json:"total_stock"`
	ReservedCount int    `json:"reserved_count"`
}

func reserveHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req reserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		targetUser := claims.UserID
		if req.UserID != "" && req.UserID != claims.UserID {
			if !users.Role(claims.Role).Privileged() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			targetUser = req.UserID
		}

		date, err := time.Parse(time.RFC3339, req.ScheduledDate)
		if err != nil {
			http.Error(w, "scheduled_date must be RFC3339", http.StatusBadRequest)
			return
		}

		sch, err := svc.Reserve(r.Context(), ReserveInput{
			UserID:        targetUser,
			VaccineID:     req.VaccineID,
			DoseNumber:    req.DoseNumber,
			ScheduledDate: date,
			Notes:         req.Notes,
		})
		if err != nil {
			writeReserveError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSchedulingResponse(sch))
	}
}

func writeReserveError(w http.ResponseWriter, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, stockErrorResponse{
			Error:         "insufficient stock",
			TotalStock:    stockErr.TotalStock,
			ReservedCount: stockErr.ReservedCount,
		})
	case errors.Is(err, ErrVaccineNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrLockTimeout):
		// Reintentable: la reserva no dejó estado parcial.
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrDuplicateScheduling),
		errors.Is(err, ErrMissingPreviousDose),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidDoseNumber),
		errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func listMineHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Roles privilegiados pueden listar por otro usuario.
		userID := claims.UserID
		if q := strings.TrimSpace(r.URL.Query().Get("user_id")); q != "" && q != claims.UserID {
			if !users.Role(claims.Role).Privileged() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			userID = q
		}

		list, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]schedulingResponse, 0, len(list))
		for _, sch := range list {
			out = append(out, toSchedulingResponse(sch))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := loadAuthorized(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(sch))
	}
}

func confirmHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := loadAuthorized(w, r, svc)
		if !ok {
			return
		}

		updated, err := svc.Confirm(r.Context(), sch.ID)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(updated))
	}
}

type completeRequest struct {
	AppliedBy string `json:"applied_by"`
}

func completeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || !users.Role(claims.Role).Privileged() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		appliedBy := strings.TrimSpace(req.AppliedBy)
		if appliedBy == "" {
			appliedBy = claims.UserID
		}

		updated, _, err := svc.Complete(r.Context(), chi.URLParam(r, "schedulingID"), appliedBy)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(updated))
	}
}

type updateDateRequest struct {
	ScheduledDate string `json:"scheduled_date"` // RFC3339
}

func updateDateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := loadAuthorized(w, r, svc)
		if !ok {
			return
		}

		var req updateDateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		date, err := time.Parse(time.RFC3339, req.ScheduledDate)
		if err != nil {
			http.Error(w, "scheduled_date must be RFC3339", http.StatusBadRequest)
			return
		}

		updated, err := svc.UpdateDate(r.Context(), sch.ID, date)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(updated))
	}
}

type reassignNurseRequest struct {
	NurseID string `json:"nurse_id"`
}

func reassignNurseHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || !users.Role(claims.Role).Privileged() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req reassignNurseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		updated, err := svc.ReassignNurse(r.Context(), chi.URLParam(r, "schedulingID"), req.NurseID)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(updated))
	}
}

func cancelHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := loadAuthorized(w, r, svc)
		if !ok {
			return
		}

		updated, err := svc.Cancel(r.Context(), sch.ID)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingResponse(updated))
	}
}

// loadAuthorized carga el scheduling y verifica dueño o rol privilegiado.
// La legalidad de la transición la decide el servicio, no este layer.
func loadAuthorized(w http.ResponseWriter, r *http.Request, svc *Service) (Scheduling, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return Scheduling{}, false
	}

	sch, err := svc.GetByID(r.Context(), chi.URLParam(r, "schedulingID"))
	if err != nil {
		http.Error(w, "scheduling not found", http.StatusNotFound)
		return Scheduling{}, false
	}

	if sch.UserID != claims.UserID && !users.Role(claims.Role).Privileged() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return Scheduling{}, false
	}
	return sch, true
}

func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, vaccines.ErrStockUnderflow):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrBadState),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toSchedulingResponse(s Scheduling) schedulingResponse {
	return schedulingResponse{
		ID:              s.ID,
		UserID:          s.UserID,
		VaccineID:       s.VaccineID,
		AssignedNurseID: s.AssignedNurseID,
		DoseNumber:      s.DoseNumber,
		ScheduledDate:   s.ScheduledDate,
		Status:          s.Status,
		Notes:           s.Notes,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		DeletedAt:       s.DeletedAt,
	}
}

// writeJSON está duplicado intencionalmente en los handlers de cada módulo
// para no crear helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
