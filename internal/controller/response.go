package controller

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
)

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondValidationErrors writes a 400 response with one detail per invalid field.
func respondValidationErrors(w http.ResponseWriter, err error) {
	details := []string{err.Error()}
	if errs, ok := err.(validation.Errors); ok {
		details = details[:0]
		for field, fieldErr := range errs {
			details = append(details, field+": "+fieldErr.Error())
		}
		sort.Strings(details)
	}
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "validation_failed",
		"details": details,
	})
}

// respondServiceError maps a service error to a status code. Unexpected
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if appErrors.IsNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// campaignID parses the {id} URL parameter.
func campaignID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter, returning def when
// it is absent. ok is false when the value is present but invalid.
func queryInt(r *http.Request, name string, def int) (v int, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
