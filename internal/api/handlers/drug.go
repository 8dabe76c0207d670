package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/api/middleware"
	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/storage"
)

// DrugHandler handles the drug catalog and the enum metadata endpoints
// the UI uses to render status and type pickers.
type DrugHandler struct {
	drugs  storage.DrugStore
	logger *zap.Logger
}

// NewDrugHandler creates the handler.
func NewDrugHandler(drugs storage.DrugStore, logger *zap.Logger) *DrugHandler {
	return &DrugHandler{drugs: drugs, logger: logger}
}

// Routes returns the handler routes.
func (h *DrugHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Post("/", h.Create)
	})

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// MetaRoutes returns the enum metadata routes.
func (h *DrugHandler) MetaRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/statuses", h.Statuses)
	r.Get("/drugtypes", h.Types)
	return r
}

// drugRequest is the body for catalog creation.
type drugRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	GenericName string `json:"genericName,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Create handles POST /drugs.
func (h *DrugHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req drugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	d := &drug.Drug{
		ID:          uuid.New().String(),
		Code:        req.Code,
		Name:        req.Name,
		GenericName: req.GenericName,
		Description: req.Description,
		Type:        drug.ParseType(req.Type),
	}
	if err := d.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.drugs.Create(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("drug added to catalog",
		zap.String("drug", d.ID),
		zap.String("code", d.Code),
		zap.String("actor", middleware.CurrentActor(r.Context()).ID),
	)
	writeJSON(w, http.StatusCreated, d)
}

// Get handles GET /drugs/{id}.
func (h *DrugHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.drugs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// List handles GET /drugs. A code query parameter narrows the catalog
// to one NDC family.
func (h *DrugHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		out []drug.Drug
		err error
	)
	if code := r.URL.Query().Get("code"); code != "" {
		out, err = h.drugs.ListByCode(r.Context(), code)
	} else {
		out, err = h.drugs.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []drug.Drug{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Statuses handles GET /meta/statuses.
func (h *DrugHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(prescription.Statuses()))
	for _, s := range prescription.Statuses() {
		out = append(out, s.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

// Types handles GET /meta/drugtypes.
func (h *DrugHandler) Types(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(drug.Types()))
	for _, t := range drug.Types() {
		out = append(out, t.Info())
	}
	writeJSON(w, http.StatusOK, out)
}
