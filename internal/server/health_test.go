package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return w, resp
}

func TestNewHealthServer(t *testing.T) {
	s := NewHealthServer(nil)
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.ready {
		t.Fatal("expected not ready initially")
	}
	if !s.live {
		t.Fatal("expected live initially")
	}
}

func TestNewHealthServer_WithConfig(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "0.3.0"})
	if s.version != "0.3.0" {
		t.Fatalf("expected version 0.3.0, got %s", s.version)
	}
}

func TestHealthServer_HandleHealth(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "0.3.0"})
	s.RegisterCheck("vector", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy, Message: "ok"}
	})

	w, resp := get(t, s.Handler(), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
	if resp.Version != "0.3.0" {
		t.Fatalf("expected version in response, got %q", resp.Version)
	}
	if len(resp.Checks) != 1 || resp.Checks[0].Name != "vector" {
		t.Fatalf("expected named check, got %+v", resp.Checks)
	}
}

func TestHealthServer_HandleHealth_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
		code     int
	}{
		{"all healthy", []HealthStatus{HealthStatusHealthy, HealthStatusHealthy}, HealthStatusHealthy, http.StatusOK},
		{"one degraded", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, HealthStatusDegraded, http.StatusOK},
		{"one unhealthy", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthServer(nil)
			for i, st := range tt.statuses {
				st := st
				s.RegisterCheck(string(rune('a'+i)), func(ctx context.Context) HealthCheck {
					return HealthCheck{Status: st}
				})
			}

			w, resp := get(t, s.Handler(), "/health")
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if resp.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, resp.Status)
			}
		})
	}
}

func TestHealthServer_ReadyAndLive(t *testing.T) {
	s := NewHealthServer(nil)
	h := s.Handler()

	if w, _ := get(t, h, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}
	s.SetReady(true)
	if w, _ := get(t, h, "/ready"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", w.Code)
	}

	if w, _ := get(t, h, "/live"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 while live, got %d", w.Code)
	}
	s.SetLive(false)
	w, resp := get(t, h, "/live")
	if w.Code != http.StatusServiceUnavailable || resp.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy 503, got %d %s", w.Code, resp.Status)
	}
}

func TestHealthServer_KubernetesAliases(t *testing.T) {
	s := NewHealthServer(nil)
	s.SetReady(true)
	h := s.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		w, _ := get(t, h, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: expected application/json, got %s", path, ct)
		}
	}
}

func TestHealthServer_ShutdownTwice(t *testing.T) {
	s := NewHealthServer(nil)
	s.Shutdown()
	s.Shutdown()
}

func TestVectorStoreHealthChecker(t *testing.T) {
	ok := VectorStoreHealthChecker("local", "pdf_knowledge_base", func(ctx context.Context) error { return nil })(context.Background())
	if ok.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", ok.Status)
	}
	if ok.Details["collection"] != "pdf_knowledge_base" || ok.Details["backend"] != "local" {
		t.Fatalf("unexpected details %v", ok.Details)
	}

	bad := VectorStoreHealthChecker("qdrant", "rules", func(ctx context.Context) error {
		return errors.New("collection not found")
	})(context.Background())
	if bad.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", bad.Status)
	}
}

func TestEmbeddingHealthChecker(t *testing.T) {
	calls := 0
	ok := EmbeddingHealthChecker("ollama", func(ctx context.Context) error {
		calls++
		return nil
	})(context.Background())
	if ok.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", ok.Status)
	}
	if calls != 1 {
		t.Fatalf("expected the check to run once, ran %d times", calls)
	}

	bad := EmbeddingHealthChecker("ollama", func(ctx context.Context) error {
		return errors.New("connection refused")
	})(context.Background())
	if bad.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", bad.Status)
	}
	if bad.Details["provider"] != "ollama" {
		t.Fatalf("expected provider detail, got %v", bad.Details)
	}
}

func TestGatewayHealthChecker(t *testing.T) {
	connected := true
	check := GatewayHealthChecker(func() bool { return connected })

	if got := check(context.Background()); got.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", got.Status)
	}
	connected = false
	if got := check(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got.Status)
	}
}

func TestTemporalHealthChecker(t *testing.T) {
	if got := TemporalHealthChecker(func(ctx context.Context) error { return nil })(context.Background()); got.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %s", got.Status)
	}
	got := TemporalHealthChecker(func(ctx context.Context) error { return errors.New("dial") })(context.Background())
	if got.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got.Status)
	}
}

func TestHealthServer_ExtraRoute(t *testing.T) {
	s := NewHealthServer(nil)
	s.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("gloombot_commands_total 0\n"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "gloombot_commands_total 0\n" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
