package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Hint  string `json:"hint,omitempty"`

	// Result carries the partial pipeline output on 207 responses
	Result any `json:"result,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response with a plain message
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeErr maps err onto a status and error body. partial, when non-nil,
// is attached as the body's result.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error, partial any) {
	status := statusFor(err)
	body := errorBody{
		Error:  err.Error(),
		Stage:  string(errors.StageOf(err)),
		Unit:   errors.UnitOf(err),
		Hint:   errors.FlattenHints(err),
		Result: partial,
	}

	log := logger.FromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", logger.FieldStatus, status, logger.FieldError, err)
	} else {
		log.Debugw("Request rejected", logger.FieldStatus, status, logger.FieldError, err)
	}
	writeJSON(w, status, body)
}

// readJSON decodes a JSON request body into v and validates it
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.NewInvalidRequestError("request body is empty")
		}
		return errors.NewInvalidRequestError("invalid request body: %v", err)
	}
	return validateStruct(v)
}

// readBody reads at most maxBytes of the request body
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.Wrapf(errors.ErrTooLarge, "request body exceeds %d bytes", maxBytes)
		}
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if len(data) == 0 {
		return nil, errors.NewInvalidRequestError("request body is empty")
	}
	return data, nil
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewInvalidRequestError("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewInvalidRequestError("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}

// requireURL returns the url query parameter that keys single-bookmark routes
func requireURL(r *http.Request) (string, error) {
	u := r.URL.Query().Get("url")
	if u == "" {
		return "", errors.NewInvalidRequestError("url query parameter is required")
	}
	return u, nil
}
