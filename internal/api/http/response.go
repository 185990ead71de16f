package httpapi

import (
	"encoding/json"
	"net/http"

	"plateful/internal/apperr"
)

// Envelope is the uniform result shape every endpoint returns. UI clients
// branch on success/errorCode/retryable instead of HTTP minutiae.
type Envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode apperr.Code       `json:"errorCode,omitempty"`
	Retryable *bool             `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func writeCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// writeErr classifies the error once and renders the envelope. No raw
// error ever reaches a client unclassified.
func writeErr(w http.ResponseWriter, err error) {
	e := apperr.Classify(err)
	retryable := e.Retryable
	writeJSON(w, statusFor(e.Code), Envelope{
		Success:   false,
		Error:     e.Message,
		ErrorCode: e.Code,
		Retryable: &retryable,
		Fields:    e.Fields,
	})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodeInvalidEmail, apperr.CodeWeakPassword:
		return http.StatusBadRequest
	case apperr.CodeNotFound, apperr.CodeUserNotFound:
		return http.StatusNotFound
	case apperr.CodePermissionDenied, apperr.CodeWrongPassword, apperr.CodeUserDisabled:
		return http.StatusForbidden
	case apperr.CodeConflict, apperr.CodeInvalidTransition, apperr.CodeEmailInUse:
		return http.StatusConflict
	case apperr.CodeQuotaExceeded, apperr.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case apperr.CodeNetwork, apperr.CodeTimeout, apperr.CodeConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
