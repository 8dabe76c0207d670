// Package handlers provides HTTP handlers for the prescription API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicore/rxcore/internal/errs"
)

// writeError maps the error taxonomy onto HTTP status codes: validation
// failures are 400, missing records 404, conflicts and rejected
// transitions 409, and an unstocked drug 422.
func writeError(w http.ResponseWriter, err error) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrDrugNotStocked):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
