package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
)

var errorStatus = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{domain.ErrInvalidExtension, http.StatusBadRequest, "invalid_extension"},
	{domain.ErrPolicyViolation, http.StatusBadRequest, "policy_violation"},
	{domain.ErrUnknownReader, http.StatusBadRequest, "unknown_reader"},
	{domain.ErrInvalidScan, http.StatusBadRequest, "invalid_scan"},
	{domain.ErrNotPermitted, http.StatusForbidden, "not_permitted"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrSchedulingConflict, http.StatusConflict, "scheduling_conflict"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrPrecedingActionRequired, http.StatusConflict, "preceding_action_required"},
	{domain.ErrAlreadyReturned, http.StatusConflict, "already_returned"},
	{domain.ErrTransient, http.StatusServiceUnavailable, "transient"},
}

func writeError(w http.ResponseWriter, err error) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.target) {
			continue
		}
		body := errorResponse{Error: e.code, Message: err.Error()}
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			body.ConflictIDs = conflict.ConflictIDs
		}
		if e.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, e.status, body)
		return
	}

	logger.Error("Unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
