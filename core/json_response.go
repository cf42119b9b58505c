package core

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body for every error reply. Detail is the human
// readable message; Code is the stable key from HTTPError; Details carries
// per-field validation messages when present.
type ErrorResponse struct {
	Detail  string              `json:"detail"`
	Code    string              `json:"code,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
// Encoding failures after the header is written can only be logged by the
// caller; the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError maps an error to its JSON error body and status code.
// HTTPError values carry their own status; ValidationError renders as 422
// with per-field details; anything else becomes an opaque 500 so internal
// error text never leaks to clients.
func WriteError(w http.ResponseWriter, err error) error {
	status := http.StatusInternalServerError
	body := ErrorResponse{
		Detail: http.StatusText(http.StatusInternalServerError),
		Code:   "internal_server_error",
	}

	switch e := err.(type) {
	case ValidationError:
		status = http.StatusUnprocessableEntity
		body.Code = "validation_error"
		body.Detail = "Validation failed"
		if len(e) > 0 {
			body.Details = make(map[string][]string, len(e))
			for field, msgs := range e {
				body.Details[field] = msgs
			}
		}
	case HTTPError:
		status = e.Code
		body.Code = e.Key
		body.Detail = http.StatusText(e.Code)
	}

	return WriteJSON(w, status, body)
}

// WriteErrorDetail is WriteError with an explicit human readable message,
// used when the default status text is too vague for the client.
func WriteErrorDetail(w http.ResponseWriter, httpErr HTTPError, detail string) error {
	return WriteJSON(w, httpErr.Code, ErrorResponse{
		Detail: detail,
		Code:   httpErr.Key,
	})
}
