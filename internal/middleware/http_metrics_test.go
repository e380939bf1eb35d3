package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRouteOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1/recommendations", "/v1/recommendations"},
		{"/v1/recommendations/", "/v1/recommendations"},
		{"/v1/recommendations/6f1c/explanation", "/v1/recommendations/{id}/explanation"},
		{"/v1/recommendations/6f1c/explanation/", "/v1/recommendations/{id}/explanation"},
		{"/v1/recommendations//explanation", routeOther},
		{"/v1/recommendations/6f1c", routeOther},
		{"/v1/recommendations/a/b/explanation", routeOther},
		{"/.env", routeOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := routeOf(tt.path); got != tt.want {
				t.Errorf("routeOf(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetrics(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		status     int
		body       string
		wantRoute  string
		wantStatus string
		measured   bool
	}{
		{name: "ranking", path: "/v1/recommendations", status: http.StatusOK, body: `{"results":[]}`, wantRoute: "/v1/recommendations", wantStatus: "200", measured: true},
		{name: "explanation", path: "/v1/recommendations/u1/explanation", status: http.StatusNotFound, wantRoute: "/v1/recommendations/{id}/explanation", wantStatus: "404", measured: true},
		{name: "implicit 200", path: "/", status: 0, body: "ok", wantRoute: "/", wantStatus: "200", measured: true},
		{name: "unknown path", path: "/admin/config.php", status: http.StatusNotFound, wantRoute: routeOther, wantStatus: "404", measured: true},
		{name: "health skipped", path: "/health", status: http.StatusOK, measured: false},
		{name: "scrape skipped", path: "/metrics", status: http.StatusOK, measured: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := testutil.ToFloat64(m.inFlight); tt.measured && got != 1 {
					t.Errorf("in flight during request = %v, want 1", got)
				}
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if !tt.measured {
				if n := testutil.CollectAndCount(m.requests); n != 0 {
					t.Errorf("expected no series, got %d", n)
				}
				return
			}
			if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, tt.wantRoute, tt.wantStatus)); got != 1 {
				t.Errorf("requests{%s,%s} = %v, want 1", tt.wantRoute, tt.wantStatus, got)
			}
			if got := testutil.ToFloat64(m.inFlight); got != 0 {
				t.Errorf("in flight after request = %v, want 0", got)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := newStatusRecorder(rr)

	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusInternalServerError)
	_, _ = rec.Write([]byte("abc"))
	_, _ = rec.Write([]byte("de"))

	if rec.status != http.StatusAccepted || rr.Code != http.StatusAccepted {
		t.Errorf("status = %d/%d, want 202", rec.status, rr.Code)
	}
	if rec.bytes != 5 {
		t.Errorf("bytes = %d, want 5", rec.bytes)
	}
	if rec.Unwrap() != rr {
		t.Error("Unwrap() should return the wrapped writer")
	}
}
