package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers without any choice.
var ErrEmptyResponse = errors.New("llm: empty response")

// ErrorKind separates failures worth retrying from ones that will not change on retry.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindTerminal  ErrorKind = "terminal"
)

// StatusError carries the HTTP status reported by a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Classify reports whether err is transient (timeouts, throttling, 5xx, flaky
// network) or terminal (auth, bad request, malformed response, cancellation).
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	if errors.Is(err, context.Canceled) {
		return ErrorKindTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ErrorKindTerminal
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, statusErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTransient
		}
		return ErrorKindTerminal
	}

	return classifyMessage(err.Error())
}

// IsTransient is shorthand for Classify(err) == ErrorKindTransient.
func IsTransient(err error) bool {
	return Classify(err) == ErrorKindTransient
}

func classifyStatus(code int, msg string) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		// Daily token quotas do not reset within any sane retry window.
		if isDailyQuota(msg) {
			return ErrorKindTerminal
		}
		return ErrorKindTransient
	case code == http.StatusRequestTimeout:
		return ErrorKindTransient
	case code >= 500:
		return ErrorKindTransient
	default:
		return ErrorKindTerminal
	}
}

func classifyMessage(errStr string) ErrorKind {
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		if isDailyQuota(errStr) {
			return ErrorKindTerminal
		}
		return ErrorKindTransient
	}

	for _, code := range []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		if strings.Contains(errStr, fmt.Sprint(code)) || strings.Contains(errStr, http.StatusText(code)) {
			return ErrorKindTransient
		}
	}

	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(errStr, code) {
			return ErrorKindTerminal
		}
	}

	// Unknown failures from a remote model are usually blips.
	return ErrorKindTransient
}

func isDailyQuota(msg string) bool {
	return strings.Contains(msg, "tokens per day") || strings.Contains(msg, "TPD")
}
