package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"moledger/internal/models"
)

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Status: models.StatusSuccess, Message: message, Data: data})
}

// Err writes an error envelope with the given HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.APIResponse{Status: models.StatusError, Message: msg})
}

// Status maps a domain error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, models.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status code Status picks for it.
func Error(w http.ResponseWriter, err error) {
	Err(w, err.Error(), Status(err))
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// ErrData writes an error envelope that still carries a payload, for
// outcomes where the caller needs the details of what failed.
func ErrData(w http.ResponseWriter, msg string, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.APIResponse{Status: models.StatusError, Message: msg, Data: data})
}
