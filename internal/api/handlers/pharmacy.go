package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/api/middleware"
	"github.com/clinicore/rxcore/internal/domain/pharmacy"
	"github.com/clinicore/rxcore/internal/geo"
	"github.com/clinicore/rxcore/internal/service"
)

// PharmacyHandler handles pharmacy registry endpoints.
type PharmacyHandler struct {
	svc    *service.PharmacyService
	zips   *geo.Index
	logger *zap.Logger
}

// NewPharmacyHandler creates the handler. zips may be nil when no zip
// index was loaded.
func NewPharmacyHandler(svc *service.PharmacyService, zips *geo.Index, logger *zap.Logger) *PharmacyHandler {
	return &PharmacyHandler{svc: svc, zips: zips, logger: logger}
}

// Routes returns the handler routes. Registry writes are admin-only;
// stock management is open to pharmacists as well.
func (h *PharmacyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Post("/", h.Create)
		r.Put("/{name}", h.Update)
		r.Delete("/{name}", h.Delete)
		r.Put("/{name}/prescriptions", h.SetPrescriptions)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin, middleware.RolePharmacist))
		r.Put("/{name}/drugs", h.SetStockedDrugs)
		r.Get("/{name}/prescriptions", h.Prescriptions)
	})

	r.Get("/", h.List)
	r.Get("/{name}", h.Get)
	r.Get("/{name}/drugs", h.StockedDrugs)
	return r
}

// pharmacyRequest is the body for create and update.
type pharmacyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
	State   string `json:"state,omitempty"`
}

// Create handles POST /pharmacies.
func (h *PharmacyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req pharmacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.Create(r.Context(), service.PharmacyFields{
		Name:    req.Name,
		Address: req.Address,
		Zip:     req.Zip,
		State:   req.State,
	}, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get handles GET /pharmacies/{name}.
func (h *PharmacyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /pharmacies. A zip query parameter narrows the
// listing; the response is enriched with the zip's city/state when the
// zip index knows it.
func (h *PharmacyHandler) List(w http.ResponseWriter, r *http.Request) {
	zip := r.URL.Query().Get("zip")

	var (
		out []pharmacy.Pharmacy
		err error
	)
	if zip != "" {
		out, err = h.svc.GetByZip(r.Context(), zip)
	} else {
		out, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []pharmacy.Pharmacy{}
	}

	if zip != "" && h.zips != nil {
		if loc, ok := h.zips.Lookup(zip); ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"zip":        loc.Zip,
				"city":       loc.City,
				"state":      loc.State,
				"pharmacies": out,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Update handles PUT /pharmacies/{name}. Submitting a different name
// renames the pharmacy in place.
func (h *PharmacyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req pharmacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "name"), service.PharmacyFields{
		Name:    req.Name,
		Address: req.Address,
		Zip:     req.Zip,
		State:   req.State,
	}, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /pharmacies/{name}.
func (h *PharmacyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.CurrentActor(r.Context())
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "name"), actor.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StockedDrugs handles GET /pharmacies/{name}/drugs.
func (h *PharmacyHandler) StockedDrugs(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Drugs)
}

// idsRequest carries a whole-set replacement of ids.
type idsRequest struct {
	IDs []string `json:"ids"`
}

// SetStockedDrugs handles PUT /pharmacies/{name}/drugs.
func (h *PharmacyHandler) SetStockedDrugs(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.SetStockedDrugs(r.Context(), chi.URLParam(r, "name"), req.IDs, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Prescriptions handles GET /pharmacies/{name}/prescriptions.
func (h *PharmacyHandler) Prescriptions(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	ids := p.PrescriptionIDs
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// SetPrescriptions handles PUT /pharmacies/{name}/prescriptions.
func (h *PharmacyHandler) SetPrescriptions(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := middleware.CurrentActor(r.Context())
	p, err := h.svc.SetPrescriptions(r.Context(), chi.URLParam(r, "name"), req.IDs, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
