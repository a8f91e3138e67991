package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns a JSON-serializable snapshot of the running cluster, or nil when
// there is none.
type StatusFunc func() any

// NewServer creates an HTTP server serving /metrics (Prometheus), /healthz and, when
// status is non-nil, /cluster.
func NewServer(addr string, status StatusFunc) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if status != nil {
		r.Get("/cluster", func(w http.ResponseWriter, _ *http.Request) {
			snapshot := status()
			if snapshot == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no cluster"})
				return
			}
			writeJSON(w, http.StatusOK, snapshot)
		})
	}

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
