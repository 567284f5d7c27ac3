package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass says whether a failed platform call is worth retrying on a later pass.
type ErrorClass int

const (
	// ErrorClassRetryable covers transient failures (network, rate limiting, 5xx).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal covers failures a retry will not fix (missing permissions, unknown channel).
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StatusError is a platform error carrying an HTTP status code.
type StatusError struct {
	Op     string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// ClassifyError sorts a platform error into a retry class. Every platform failure is skipped for
// the current pass regardless; the class only feeds logs and metrics so persistent failures
// (a channel the bot cannot see) stand out from blips.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == 429 || se.Status >= 500:
			return ErrorClassRetryable
		case se.Status == 401 || se.Status == 403 || se.Status == 404:
			return ErrorClassFatal
		case se.Status >= 400:
			return ErrorClassFatal
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"missing permissions",
		"missing access",
		"unknown channel",
		"unknown message",
		"unauthorized",
	}
	for _, pattern := range fatalPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}

	// Anything unrecognized is assumed transient; the next event retries it anyway.
	return ErrorClassRetryable
}
