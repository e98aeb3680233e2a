package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"consult-transcript-service/internal/observability/metrics"
)

func TestHandler_Endpoints(t *testing.T) {
	tests := []struct {
		name  string
		ready ReadinessFunc
		path  string
		code  int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"readyz without check", nil, "/readyz", http.StatusOK},
		{"readyz ok", func(context.Context) error { return nil }, "/readyz", http.StatusOK},
		{"readyz failing", func(context.Context) error { return errors.New("db closed") }, "/readyz", http.StatusServiceUnavailable},
		{"metrics", nil, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(tt.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.code {
				t.Errorf("GET %s: expected %d, got %d", tt.path, tt.code, rec.Code)
			}
		})
	}
}

func TestHTTPMiddleware_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware(metrics.DefaultMetrics))
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected handler status to pass through, got %d", rec.Code)
	}
}
