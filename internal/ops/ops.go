// Package ops serves the operator HTTP surface: Prometheus metrics, health
// and a small JSON status snapshot. It is separate from the forum protocol
// and can be disabled entirely.
package ops

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/store"
)

func NewRouter(st *store.Store) http.Handler {
	r := chi.NewRouter()

	// Allow a browser dashboard to poll the status endpoint.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		threads, online := st.Counts()
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]int{
			"threads":      threads,
			"online_users": online,
		})
		if err != nil {
			logger.Log.Warn("failed to write status response", "error", err)
		}
	})

	return r
}

// Serve runs the ops listener; it returns when the listener fails.
func Serve(addr string, st *store.Store) error {
	logger.Log.Info("ops endpoint listening", "addr", addr)
	return http.ListenAndServe(addr, NewRouter(st))
}
