package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"spoon/internal/model"
	"spoon/internal/slots"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error"`
	Code     string        `json:"code"`
	Conflict *slots.Result `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg, Code: code})
}

// statusOf maps an engine error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrIncompleteComponentSet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Success: false, Error: err.Error(), Code: model.CodeOf(err)}
	if conflict, ok := slots.AsConflict(err); ok {
		resp.Conflict = &conflict
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrValidation, err)
	}
	return nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", model.ErrValidation, name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrValidation, name)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", model.ErrValidation)
	}
	return id, nil
}
