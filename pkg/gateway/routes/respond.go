package routes

import (
	"encoding/json"
	"net/http"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

// writeError maps err onto its HTTP status. Errors without a user facing
// message are reported as fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status, msg := statusAndMessage(err, fallback)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error(fallback)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusAndMessage(err error, fallback string) (int, string) {
	msg := apperr.Message(err)
	if msg == "" {
		msg = fallback
	}
	return apperr.HTTPStatus(err), msg
}

// writeText is used by the browser-facing OAuth endpoints.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
