// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
)

func init() {
	logging.Init(logging.Config{Level: "disabled"})
}

func newRouter(handler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(PrometheusMetrics)
	r.Use(AccessLog)
	r.Get("/parties/{partyID}", handler)
	r.Get("/upgrade", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); !ok {
			http.Error(w, "not hijackable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestRequestID(t *testing.T) {
	var seen, logged string
	h := newRouter(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		logged = logging.RequestIDFromContext(r.Context())
	})

	tests := []struct {
		name     string
		upstream string
		keep     bool
	}{
		{"generated", "", false},
		{"from proxy", "proxy-req-42", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/parties/p1", nil)
			if tt.upstream != "" {
				req.Header.Set(RequestIDHeader, tt.upstream)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" {
				t.Fatal("X-Request-ID not set")
			}
			if tt.keep && got != tt.upstream {
				t.Errorf("X-Request-ID = %q, want %q", got, tt.upstream)
			}
			if seen != got || logged != got {
				t.Errorf("context ids = %q/%q, header %q", seen, logged, got)
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	h := newRouter(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/parties/{partyID}", "202")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/parties/"+id, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests recorded under route pattern = %v, want 3", got)
	}
}

func TestStatusRecorderHijack(t *testing.T) {
	h := newRouter(func(http.ResponseWriter, *http.Request) {})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/upgrade")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
