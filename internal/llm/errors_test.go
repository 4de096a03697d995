package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "dial tcp: i/o" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"canceled", context.Canceled, ErrorKindTerminal},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorKindTransient},
		{"empty response", fmt.Errorf("openai: %w", ErrEmptyResponse), ErrorKindTerminal},
		{"status 429", &StatusError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}, ErrorKindTransient},
		{"status 429 daily", &StatusError{Provider: "groq", StatusCode: 429, Err: errors.New("Limit tokens per day (TPD)")}, ErrorKindTerminal},
		{"status 500", &StatusError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}, ErrorKindTransient},
		{"status 401", &StatusError{Provider: "openai", StatusCode: 401, Err: errors.New("bad key")}, ErrorKindTerminal},
		{"status 400", &StatusError{Provider: "openai", StatusCode: 400, Err: errors.New("bad request")}, ErrorKindTerminal},
		{"net timeout", timeoutErr{timeout: true}, ErrorKindTransient},
		{"net refused", timeoutErr{timeout: false}, ErrorKindTerminal},
		{"message 503", errors.New("503 Service Unavailable"), ErrorKindTransient},
		{"message 403", errors.New("403 forbidden"), ErrorKindTerminal},
		{"unknown", errors.New("something odd"), ErrorKindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError_Unwrap(t *testing.T) {
	inner := errors.New("bad key")
	err := fmt.Errorf("complete: %w", &StatusError{Provider: "openai", StatusCode: 401, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("expected StatusError to unwrap to its cause")
	}
	if IsTransient(err) {
		t.Error("401 must not be transient")
	}
}
