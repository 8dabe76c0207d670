package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/api/middleware"
	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/service"
)

// dateLayout is the date-only wire format for prescription dates.
const dateLayout = "2006-01-02"

// PrescriptionHandler handles prescription endpoints.
type PrescriptionHandler struct {
	svc    *service.PrescriptionService
	logger *zap.Logger
}

// NewPrescriptionHandler creates the handler.
func NewPrescriptionHandler(svc *service.PrescriptionService, logger *zap.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RolePrescriber, middleware.RoleAdmin))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Edit)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/assign", h.Assign)
		r.Post("/{id}/cancel", h.Cancel)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RolePharmacist, middleware.RoleAdmin))
		r.Post("/{id}/fill", h.Fill)
	})

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// prescriptionRequest is the shared request body for create and edit.
type prescriptionRequest struct {
	DrugCode  string `json:"drugCode"`
	Dosage    int    `json:"dosage"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Renewals  int    `json:"renewals"`
	Patient   string `json:"patient"`
	Pharmacy  string `json:"pharmacy,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (req *prescriptionRequest) toPrescription() (*prescription.Prescription, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, errs.Validationf("startDate", "%q is not a date (expected %s)", req.StartDate, dateLayout)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, errs.Validationf("endDate", "%q is not a date (expected %s)", req.EndDate, dateLayout)
	}
	return &prescription.Prescription{
		DrugCode:  req.DrugCode,
		Dosage:    req.Dosage,
		StartDate: start,
		EndDate:   end,
		Renewals:  req.Renewals,
		Patient:   req.Patient,
	}, nil
}

// Create handles POST /prescriptions.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req prescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p, err := req.toPrescription()
	if err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.CurrentActor(r.Context())
	created, err := h.svc.Create(r.Context(), p, req.Pharmacy, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /prescriptions. Patients see only their own rows; a
// patient query parameter narrows the listing for other roles.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.CurrentActor(r.Context())

	patientRef := r.URL.Query().Get("patient")
	if actor.Role == middleware.RolePatient {
		patientRef = actor.ID
	}

	var (
		out []prescription.Prescription
		err error
	)
	if patientRef != "" {
		out, err = h.svc.ListForPatient(r.Context(), patientRef)
	} else {
		out, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []prescription.Prescription{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Edit handles PUT /prescriptions/{id}.
func (h *PrescriptionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req prescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p, err := req.toPrescription()
	if err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.CurrentActor(r.Context())
	updated, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), service.EditFields{
		Prescription: *p,
		Status:       req.Status,
	}, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /prescriptions/{id}.
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.CurrentActor(r.Context())
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actor.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// assignRequest is the body for POST /prescriptions/{id}/assign. An
// empty pharmacy falls back to the patient's default pharmacy.
type assignRequest struct {
	Pharmacy string `json:"pharmacy,omitempty"`
}

// Assign handles POST /prescriptions/{id}/assign.
func (h *PrescriptionHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.Assign(r.Context(), chi.URLParam(r, "id"), req.Pharmacy, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// fillRequest is the body for POST /prescriptions/{id}/fill.
type fillRequest struct {
	Pharmacy string `json:"pharmacy"`
}

// Fill handles POST /prescriptions/{id}/fill.
func (h *PrescriptionHandler) Fill(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Pharmacy == "" {
		writeError(w, errs.Validation("pharmacy", "must not be empty"))
		return
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.Fill(r.Context(), chi.URLParam(r, "id"), req.Pharmacy, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Cancel handles POST /prescriptions/{id}/cancel.
func (h *PrescriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
