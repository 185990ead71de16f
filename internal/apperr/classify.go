package apperr

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	"plateful/internal/store"
)

// Classify maps a raw error onto the taxonomy. Already-classified errors
// pass through untouched; anything unrecognized becomes UNKNOWN_ERROR with
// retryable=true.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return Wrap(CodeNotFound, "", err)
	case errors.Is(err, store.ErrConflict):
		return Wrap(CodeConflict, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, "", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return Wrap(CodeConflict, "", err)
		case "23505": // unique violation
			return Wrap(CodeConflict, "", err)
		case "42501":
			return Wrap(CodePermissionDenied, "", err)
		case "53300", "53400": // connection / configuration limits
			return Wrap(CodeQuotaExceeded, "", err)
		case "57014": // query canceled
			return Wrap(CodeTimeout, "", err)
		}
		switch pqErr.Code.Class() {
		case "08":
			return Wrap(CodeConnection, "", err)
		case "22", "23":
			return Wrap(CodeValidation, "", err)
		case "28":
			return Wrap(CodePermissionDenied, "", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(CodeTimeout, "", err)
		}
		return Wrap(CodeNetwork, "", err)
	}

	// Message sniffing for transports that only surface strings.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return Wrap(CodeTimeout, "", err)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "broken pipe"):
		return Wrap(CodeConnection, "", err)
	case strings.Contains(msg, "network"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "unavailable"):
		return Wrap(CodeNetwork, "", err)
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return Wrap(CodeTooManyRequests, "", err)
	case strings.Contains(msg, "quota"):
		return Wrap(CodeQuotaExceeded, "", err)
	}

	return Wrap(CodeUnknown, "", err)
}
