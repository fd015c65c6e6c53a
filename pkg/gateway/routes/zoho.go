package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/provider-hub/pkg/common/kafka"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"github.com/synaptica-ai/provider-hub/pkg/dlp"
	"github.com/synaptica-ai/provider-hub/pkg/zoho"
)

type OAuthFlow interface {
	AuthURL(ctx context.Context, providerID string) (string, error)
	Complete(ctx context.Context, code, state string) (models.Provider, error)
}

type LeadWorkflow interface {
	UpsertLead(ctx context.Context, providerID string, req models.LeadRequest) (*zoho.UpsertResult, error)
	ConvertLead(ctx context.Context, providerID, leadID string, req models.ConvertLeadRequest) (*zoho.Response, error)
}

type ZohoHandler struct {
	oauth  OAuthFlow
	leads  LeadWorkflow
	events kafka.Publisher
	masker *dlp.Masker
}

func NewZohoHandler(oauth OAuthFlow, leads LeadWorkflow, events kafka.Publisher, masker *dlp.Masker) *ZohoHandler {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &ZohoHandler{oauth: oauth, leads: leads, events: events, masker: masker}
}

func (h *ZohoHandler) Register(r *mux.Router) {
	r.HandleFunc("/zoho/callback", h.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/zoho/{providerId}/auth/start", h.handleStart).Methods(http.MethodGet)
	r.HandleFunc("/zoho/{providerId}/leads", h.handleUpsertLead).Methods(http.MethodPost)
	r.HandleFunc("/zoho/{providerId}/leads/{leadId}/convert", h.handleConvertLead).Methods(http.MethodPost)
}

func (h *ZohoHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	url, err := h.oauth.AuthURL(r.Context(), mux.Vars(r)["providerId"])
	if err != nil {
		h.oauthError(w, err, "Auth init failed")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *ZohoHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider, err := h.oauth.Complete(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		h.oauthError(w, err, "Token exchange failed")
		return
	}

	if err := h.events.PublishEvent(r.Context(), models.EventProviderConnected, "zoho", map[string]interface{}{
		"provider_id": provider.ProviderID,
		"dc":          provider.CRM.DataCenter,
	}); err != nil {
		logger.Log.WithError(err).Warn("Failed to publish provider connected event")
	}
	writeText(w, http.StatusOK, "Zoho connected. You can close this window.")
}

func (h *ZohoHandler) oauthError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, directory.ErrProviderNotFound) {
		writeText(w, http.StatusNotFound, "Provider not found")
		return
	}
	status, msg := statusAndMessage(err, fallback)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error(fallback)
	}
	writeText(w, status, msg)
}

func (h *ZohoHandler) handleUpsertLead(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["providerId"]

	var req models.LeadRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	logger.WithProvider(providerID).WithFields(map[string]interface{}{
		"intent":  req.Intent,
		"channel": req.Channel,
		"message": h.masker.MaskString(req.Message),
	}).Debug("Lead upsert requested")

	result, err := h.leads.UpsertLead(r.Context(), providerID, req)
	if err != nil {
		writeError(w, err, "Zoho lead upsert failed")
		return
	}
	if !result.Response.OK() {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"ok":     false,
			"error":  "Zoho lead upsert failed",
			"status": result.Response.StatusCode,
			"zoho":   result.Response.Payload(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"lead_id":       result.LeadID,
		"created":       result.Created,
		"note_attached": result.NoteAttached,
		"zoho":          result.Response.Payload(),
	})
}

func (h *ZohoHandler) handleConvertLead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.ConvertLeadRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	resp, err := h.leads.ConvertLead(r.Context(), vars["providerId"], vars["leadId"], req)
	if err != nil {
		writeError(w, err, "Zoho lead convert failed")
		return
	}
	if !resp.OK() {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"ok":     false,
			"error":  "Zoho lead convert failed",
			"status": resp.StatusCode,
			"zoho":   resp.Payload(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": resp.Payload()})
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

