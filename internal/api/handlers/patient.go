package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/api/middleware"
	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/patient"
)

// PatientHandler manages the patient directory entries the engine
// consults: contact email, brand/generic preference and the default
// pharmacy used when a prescription is sent without an explicit target.
type PatientHandler struct {
	patients patient.Directory
	logger   *zap.Logger
}

// NewPatientHandler creates the handler.
func NewPatientHandler(patients patient.Directory, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, logger: logger}
}

// Routes returns the handler routes.
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin, middleware.RolePatient))
		r.Put("/{username}", h.Put)
	})

	r.Get("/{username}", h.Get)
	return r
}

// patientRequest is the body for directory upserts.
type patientRequest struct {
	Email           string `json:"email,omitempty"`
	Preference      string `json:"preference,omitempty"`
	DefaultPharmacy string `json:"defaultPharmacy,omitempty"`
}

// Put handles PUT /patients/{username}. Patients may only update their
// own entry.
func (h *PatientHandler) Put(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	actor := middleware.CurrentActor(r.Context())
	if actor.Role == middleware.RolePatient && actor.ID != username {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p := &patient.Patient{
		Username:        username,
		Email:           req.Email,
		Preference:      drug.ParseType(req.Preference),
		DefaultPharmacy: req.DefaultPharmacy,
	}
	if err := h.patients.Put(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("patient directory updated",
		zap.String("patient", username),
		zap.String("actor", actor.ID),
	)
	writeJSON(w, http.StatusOK, p)
}

// Get handles GET /patients/{username}.
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	actor := middleware.CurrentActor(r.Context())
	if actor.Role == middleware.RolePatient && actor.ID != username {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	p, err := h.patients.Get(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
