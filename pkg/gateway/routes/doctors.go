package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
)

type ProviderDirectory interface {
	List(ctx context.Context) ([]models.Provider, error)
	Get(ctx context.Context, identifier string) (models.Provider, error)
}

type Asker interface {
	Ask(ctx context.Context, provider models.Provider, question string) (string, error)
}

type DoctorHandler struct {
	providers ProviderDirectory
	llm       Asker
}

func NewDoctorHandler(providers ProviderDirectory, llm Asker) *DoctorHandler {
	return &DoctorHandler{providers: providers, llm: llm}
}

func (h *DoctorHandler) Register(r *mux.Router) {
	r.HandleFunc("/doctors", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/doctors/{providerId}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/doctors/{providerId}/ask", h.handleAsk).Methods(http.MethodPost)
}

func (h *DoctorHandler) handleList(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.List(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch doctors")
		return
	}

	out := make([]models.DoctorResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, models.NewDoctorResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DoctorHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(r.Context(), mux.Vars(r)["providerId"])
	if err != nil {
		if errors.Is(err, directory.ErrProviderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Doctor not found"})
			return
		}
		writeError(w, err, "Failed to fetch doctor by provider_id")
		return
	}
	writeJSON(w, http.StatusOK, models.NewDoctorResponse(provider))
}

func (h *DoctorHandler) handleAsk(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	providerID := strings.TrimSpace(mux.Vars(r)["providerId"])

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || providerID == "" || strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid provider ID or missing question"})
		return
	}

	provider, err := h.providers.Get(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, directory.ErrProviderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Doctor not found"})
			return
		}
		writeError(w, err, "Failed to get response from LLM")
		return
	}

	reply, err := h.llm.Ask(r.Context(), provider, req.Question)
	if err != nil {
		writeError(w, err, "Failed to get response from LLM")
		return
	}
	writeJSON(w, http.StatusOK, models.AskResponse{Reply: reply})
}
