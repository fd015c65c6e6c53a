package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
)

const maxErrorBody = 2048

var (
	ErrNotConfigured = apperr.E(apperr.KindPrecondition, "llm.Ask", "Doctor is not configured with an LLM or API key")
	ErrNoReply       = apperr.E(apperr.KindUpstream, "llm.Ask", "LLM did not return a valid reply")
)

type Client struct {
	catalog    Catalog
	httpClient *http.Client
}

func NewClient(catalog Catalog, httpClient *http.Client) *Client {
	return &Client{catalog: catalog, httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Ask sends question to the provider's backend, framed by the provider's
// system prompt, and returns the first choice.
func (c *Client) Ask(ctx context.Context, provider models.Provider, question string) (string, error) {
	if provider.LLM == "" || provider.LLMAPIKey == "" {
		return "", ErrNotConfigured
	}
	backend, ok := c.catalog.Lookup(provider.LLM)
	if !ok {
		return "", apperr.Errorf(apperr.KindValidation, "llm.Ask", "Unsupported LLM type: %s", provider.LLM)
	}

	system, err := backend.systemPrompt(provider.Name, provider.Specialty)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, "llm.Ask", err)
	}

	log := logger.WithProvider(provider.ProviderID).WithField("llm", provider.LLM)
	metrics.IncLLMRequest()

	reply, err := c.complete(ctx, backend, provider.LLMAPIKey, chatRequest{
		Model: backend.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		metrics.IncLLMFailure()
		log.WithError(err).Error("LLM request failed")
		return "", apperr.Wrap(apperr.KindUpstream, "llm.Ask", err)
	}
	if strings.TrimSpace(reply) == "" {
		metrics.IncLLMFailure()
		log.Warn("LLM response carried no reply")
		return "", ErrNoReply
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, backend Backend, apiKey string, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range backend.Headers {
		req.Header.Set(k, v)
	}
	switch backend.Auth {
	case AuthKeyHeader:
		req.Header.Set("Key", apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return "", fmt.Errorf("llm returned %d: %s", resp.StatusCode, raw)
	}

	// An unexpected shape is treated as an empty reply.
	var result chatResponse
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Choices) == 0 {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}
