package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
)

func RegisterOps(r *mux.Router) {
	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
