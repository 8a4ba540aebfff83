package response

import (
	"encoding/json"
	"net/http"

	"github.com/shashiranjanraj/ventas/pkg/orm"
)

// Envelope is the body of every API response. Code is a stable machine
// readable error code; Message is for humans.
type Envelope struct {
	Status  int               `json:"status"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// Success sends a 200 JSON response with data.
func Success(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, Envelope{Status: http.StatusOK, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, Envelope{Status: http.StatusCreated, Data: data})
}

// Error sends a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Status: status, Message: message})
}

// Fail sends an error response carrying a machine code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Envelope{Status: status, Code: code, Message: message})
}

// FailWith is Fail with a payload, e.g. the stock figures of an oversell.
func FailWith(w http.ResponseWriter, status int, code, message string, data any) {
	write(w, status, Envelope{Status: status, Code: code, Message: message, Data: data})
}

// ValidationError sends a 422 with field-level error map.
func ValidationError(w http.ResponseWriter, errs map[string]string) {
	write(w, http.StatusUnprocessableEntity, Envelope{
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Code:    "validation_failed",
		Errors:  errs,
	})
}

// Paginated sends a 200 response with data and pagination metadata.
func Paginated(w http.ResponseWriter, data any, pagination orm.Pagination) {
	body := map[string]any{
		"items":      data,
		"pagination": pagination,
	}
	write(w, http.StatusOK, Envelope{Status: http.StatusOK, Data: body})
}

// Unauthorized sends a 401.
func Unauthorized(w http.ResponseWriter) {
	Fail(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
}

// Forbidden sends a 403.
func Forbidden(w http.ResponseWriter) {
	Fail(w, http.StatusForbidden, "forbidden", "Forbidden")
}

// NotFound sends a 404.
func NotFound(w http.ResponseWriter) {
	Fail(w, http.StatusNotFound, "not_found", "Not found")
}
