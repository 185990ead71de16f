// Package apperr defines the closed error taxonomy shared by every
// repository in the app, plus the classifier that maps raw storage and
// transport failures onto it.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeConflict          Code = "CONFLICT_ERROR"
	CodeQuotaExceeded     Code = "QUOTA_EXCEEDED"
	CodeNetwork           Code = "NETWORK_ERROR"
	CodeTimeout           Code = "TIMEOUT_ERROR"
	CodeConnection        Code = "CONNECTION_ERROR"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeSetup             Code = "SETUP_ERROR"
	CodeListener          Code = "LISTENER_ERROR"
	CodeTooManyRequests   Code = "TOO_MANY_REQUESTS"
	CodeInvalidEmail      Code = "INVALID_EMAIL"
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeWrongPassword     Code = "WRONG_PASSWORD"
	CodeUserDisabled      Code = "USER_DISABLED"
	CodeEmailInUse        Code = "EMAIL_IN_USE"
	CodeWeakPassword      Code = "WEAK_PASSWORD"
	CodeUnknown           Code = "UNKNOWN_ERROR"
)

// retryableByCode fixes the retryable flag per code. Unknown errors default
// to retryable so transient backend hiccups are retried instead of silently
// swallowed.
var retryableByCode = map[Code]bool{
	CodeValidation:        false,
	CodeNotFound:          false,
	CodePermissionDenied:  false,
	CodeConflict:          true,
	CodeQuotaExceeded:     false,
	CodeNetwork:           true,
	CodeTimeout:           true,
	CodeConnection:        true,
	CodeInvalidTransition: false,
	CodeSetup:             true,
	CodeListener:          true,
	CodeTooManyRequests:   true,
	CodeInvalidEmail:      false,
	CodeUserNotFound:      false,
	CodeWrongPassword:     false,
	CodeUserDisabled:      false,
	CodeEmailInUse:        false,
	CodeWeakPassword:      false,
	CodeUnknown:           true,
}

var messageByCode = map[Code]string{
	CodeValidation:        "Some fields are invalid",
	CodeNotFound:          "The requested record was not found",
	CodePermissionDenied:  "You don't have permission to do that",
	CodeConflict:          "The record changed underneath you, please try again",
	CodeQuotaExceeded:     "Service quota exceeded, please try again later",
	CodeNetwork:           "Network problem, check your connection",
	CodeTimeout:           "The operation timed out",
	CodeConnection:        "Could not reach the server",
	CodeInvalidTransition: "That status change is not allowed",
	CodeSetup:             "Could not start the live updates",
	CodeListener:          "Live updates hit a temporary problem",
	CodeTooManyRequests:   "Too many attempts, slow down",
	CodeInvalidEmail:      "That email address looks invalid",
	CodeUserNotFound:      "No account with that email",
	CodeWrongPassword:     "Wrong password",
	CodeUserDisabled:      "This account has been disabled",
	CodeEmailInUse:        "An account with that email already exists",
	CodeWeakPassword:      "Password is too weak",
	CodeUnknown:           "Something went wrong, please try again",
}

type Error struct {
	Code      Code
	Message   string
	Retryable bool
	// Fields carries field->message details for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error for a code with its fixed retryable flag. An empty
// message falls back to the code's user-facing default.
func New(code Code, message string) *Error {
	if message == "" {
		message = messageByCode[code]
	}
	return &Error{Code: code, Message: message, Retryable: retryableByCode[code]}
}

// Wrap attaches a cause to a coded error.
func Wrap(code Code, message string, err error) *Error {
	e := New(code, message)
	e.Err = err
	return e
}

// Validation builds a VALIDATION_ERROR carrying per-field messages.
func Validation(fields map[string]string) *Error {
	e := New(CodeValidation, "")
	e.Fields = fields
	return e
}

// CodeOf extracts the taxonomy code from any error, classifying raw errors
// on the fly.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return Classify(err).Code
}

// IsRetryable reports the retryable flag of an error after classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

// Is makes errors.Is(err, apperr.New(code, "")) style checks work on codes.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}
