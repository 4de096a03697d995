package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: 5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{name: "test"}, nil)

	if retry.config == nil {
		t.Fatal("expected config to be set")
	}
	if retry.config.MaxRetries != 3 {
		t.Errorf("expected default 3 retries, got %d", retry.config.MaxRetries)
	}
	if retry.Name() != "test" {
		t.Errorf("expected name of inner provider, got %s", retry.Name())
	}
}

func TestRetryProvider_Complete_RetriesTransientErrors(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errors: []error{
			&StatusError{Provider: "test", StatusCode: 503, Err: errors.New("unavailable")},
			errors.New("502 Bad Gateway"),
		},
		responses: []*Response{{Content: "answer"}},
	}

	resp, err := NewRetryProvider(inner, fastRetryConfig(3)).Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "answer" {
		t.Errorf("expected 'answer', got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_StopsOnTerminalError(t *testing.T) {
	inner := &mockRetryProvider{
		name:   "test",
		errors: []error{&StatusError{Provider: "test", StatusCode: 401, Err: errors.New("bad key")}},
	}

	_, err := NewRetryProvider(inner, fastRetryConfig(3)).Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected 'non-retryable' in error, got: %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 401 {
		t.Errorf("expected wrapped 401 StatusError, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RespectsMaxRetries(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	for i := 0; i < 5; i++ {
		inner.errors = append(inner.errors, errors.New("500"))
	}

	_, err := NewRetryProvider(inner, fastRetryConfig(2)).Complete(context.Background(), &Prompt{}, nil)
	if err == nil || !strings.Contains(err.Error(), "max retries") {
		t.Fatalf("expected 'max retries' error, got: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RespectsContextCancellation(t *testing.T) {
	inner := &mockRetryProvider{name: "test", errors: []error{errors.New("500")}}
	cfg := fastRetryConfig(3)
	cfg.RetryDelay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRetryProvider(inner, cfg).Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestRetryProvider_Embed_FollowsRetryLogic(t *testing.T) {
	inner := &mockRetryProvider{
		name:           "test",
		embedErrors:    []error{errors.New("503 Service Unavailable")},
		embedResponses: [][][]float32{{{0.1, 0.2, 0.3}}},
	}

	embeddings, err := NewRetryProvider(inner, fastRetryConfig(3)).Embed(context.Background(), []string{"test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(embeddings))
	}
	if inner.embedCalls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.embedCalls)
	}
}

func TestRetryProvider_CalculateBackoff(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{}, &RetryConfig{
		RetryDelay: 100 * time.Millisecond,
		MaxDelay:   350 * time.Millisecond,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond},
		{6, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := retry.calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestWrapWithRetry(t *testing.T) {
	inner := &mockRetryProvider{name: "inner"}

	if WrapWithRetry(nil, ProviderConfig{MaxRetries: 2}) != nil {
		t.Error("expected nil for nil provider")
	}

	if p := WrapWithRetry(inner, ProviderConfig{}); p != Provider(inner) {
		t.Errorf("expected unwrapped provider when retries are off, got %T", p)
	}

	p := WrapWithRetry(inner, ProviderConfig{MaxRetries: 2})
	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", p)
	}
	if retry.config.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.Timeout != 0 {
		t.Errorf("expected no per-attempt timeout, got %v", retry.config.Timeout)
	}
}

// mockRetryProvider replays queued errors first, then queued responses.
type mockRetryProvider struct {
	name           string
	responses      []*Response
	errors         []error
	embedResponses [][][]float32
	embedErrors    []error
	calls          int
	embedCalls     int
}

func (m *mockRetryProvider) Name() string {
	return m.name
}

func (m *mockRetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	m.calls++

	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more responses configured")
}

func (m *mockRetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++

	if len(m.embedErrors) > 0 {
		err := m.embedErrors[0]
		m.embedErrors = m.embedErrors[1:]
		return nil, err
	}
	if len(m.embedResponses) > 0 {
		resp := m.embedResponses[0]
		m.embedResponses = m.embedResponses[1:]
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no more embed responses configured")
}
