package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/scan"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response failed", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// scanResponse carries the session alongside a failed transition, so that
// clients can render the state the error left behind.
type scanResponse struct {
	Error string      `json:"error,omitempty"`
	Scan  *scan.State `json:"scan,omitempty"`
}

// scanStatus maps a wizard error to an HTTP status.
func scanStatus(err error) int {
	var qe *capture.QualityError
	switch {
	case errors.As(err, &qe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scan.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrNotEditable), errors.Is(err, scan.ErrMissingSide),
		errors.Is(err, scan.ErrNoCamera), errors.Is(err, scan.ErrStale):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// scanResult writes the outcome of a wizard transition.
func scanResult(w http.ResponseWriter, s *scan.State, err error) {
	if err == nil {
		jsonResponse(w, http.StatusOK, s)
		return
	}
	jsonResponse(w, scanStatus(err), scanResponse{Error: scan.Describe(err), Scan: s})
}
