package api

import (
	"encoding/json"
	"net/http"

	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var validation *errors.ValidationError
	switch {
	case errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, errors.ErrSessionNotFound),
		errors.Is(err, errors.ErrAccountNotFound),
		errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrUnknownStep),
		errors.Is(err, errors.ErrUnknownNetwork),
		errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrBackendUnreachable),
		errors.Is(err, errors.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var validation *errors.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = http.StatusText(status)
	} else {
		log.Debugw("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "request body: %v", err)
	}
	return nil
}
