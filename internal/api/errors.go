// Package api exposes the sharing protocol and operational endpoints over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"deltashare/internal/domain"
)

// errorResponse is the wire shape of every error body.
type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// writeError maps typed domain errors onto HTTP statuses and a JSON body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var invalidLocation *domain.InvalidLocationError
	var schemaUnavailable *domain.SchemaUnavailableError
	var backendUnavailable *domain.BackendUnavailableError
	var decode *domain.DecodeError

	switch {
	case errors.As(err, &notFound):
		status, code = http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST"
	case errors.As(err, &validation):
		status, code = http.StatusBadRequest, "INVALID_PARAMETER_VALUE"
	case errors.As(err, &conflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.As(err, &invalidLocation):
		status, code = http.StatusUnprocessableEntity, "INVALID_TABLE_LOCATION"
	case errors.As(err, &schemaUnavailable):
		status, code = http.StatusUnprocessableEntity, "SCHEMA_UNAVAILABLE"
	case errors.As(err, &backendUnavailable):
		status, code = http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE"
	case errors.As(err, &decode):
		status, code = http.StatusUnprocessableEntity, "MALFORMED_DATA"
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{ErrorCode: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
