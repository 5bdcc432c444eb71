package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// envelope is the uniform response shape for every auth endpoint, success and
// failure alike. Errors carries per-field validation messages; Code is the
// stable machine-readable identifier of the failure kind.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeKind emits a failure envelope for the kind. An empty message falls
// back to the kind's default.
func writeKind(w http.ResponseWriter, kind ErrorKind, message string) {
	if message == "" {
		message = kind.defaultMessage()
	}
	writeJSON(w, kind.Status(), envelope{
		Success: false,
		Message: message,
		Code:    kind.Code(),
	})
}

// writeValidation emits a 400 with per-field messages.
func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, KindValidation.Status(), envelope{
		Success: false,
		Message: KindValidation.defaultMessage(),
		Code:    KindValidation.Code(),
		Errors:  fields,
	})
}

// decodeJSON reads one JSON document into dst, rejecting unknown fields and
// trailing garbage. A false return means the response has already been
// written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeKind(w, KindBadRequest, "Request body too large")
		case errors.Is(err, io.EOF):
			writeKind(w, KindBadRequest, "Request body is required")
		default:
			writeKind(w, KindBadRequest, "Malformed JSON body")
		}
		return false
	}
	if dec.More() {
		writeKind(w, KindBadRequest, "Unexpected data after JSON body")
		return false
	}
	return true
}
