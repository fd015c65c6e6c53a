package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
)

type seenRequest struct {
	header http.Header
	body   chatRequest
}

func newLLMServer(t *testing.T, status int, reply interface{}) (*httptest.Server, *[]seenRequest) {
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen = append(seen, seenRequest{header: r.Header.Clone(), body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func choices(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"message": map[string]interface{}{"content": content}}},
	}
}

func catalogFor(url string) Catalog {
	cat := DefaultCatalog()
	for name, b := range cat.Backends {
		b.Endpoint = url
		cat.Backends[name] = b
	}
	return cat
}

var ada = models.Provider{ProviderID: "42", Name: "Ada", Specialty: "Cardiology", LLM: "OpenAI", LLMAPIKey: "sk-1"}

func TestAskOpenAI(t *testing.T) {
	srv, seen := newLLMServer(t, http.StatusOK, choices("Take rest."))
	client := NewClient(catalogFor(srv.URL), srv.Client())

	reply, err := client.Ask(context.Background(), ada, "Is it serious?")
	require.NoError(t, err)
	assert.Equal(t, "Take rest.", reply)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "Bearer sk-1", req.header.Get("Authorization"))
	assert.Equal(t, "gpt-4", req.body.Model)
	require.Len(t, req.body.Messages, 2)
	assert.Equal(t, "system", req.body.Messages[0].Role)
	assert.Contains(t, req.body.Messages[0].Content, "Dr.Ada, who specializes in Cardiology")
	assert.Equal(t, chatMessage{Role: "user", Content: "Is it serious?"}, req.body.Messages[1])
}

func TestAskBastionGPT(t *testing.T) {
	srv, seen := newLLMServer(t, http.StatusOK, choices("Hello"))
	client := NewClient(catalogFor(srv.URL), srv.Client())

	provider := ada
	provider.LLM = "BastionGPT"
	reply, err := client.Ask(context.Background(), provider, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)

	req := (*seen)[0]
	assert.Equal(t, "sk-1", req.header.Get("Key"))
	assert.Equal(t, "general", req.header.Get("Function"))
	assert.Empty(t, req.header.Get("Authorization"))
	assert.Empty(t, req.body.Model)
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		provider := ada
		provider.LLMAPIKey = ""
		_, err := NewClient(DefaultCatalog(), http.DefaultClient).Ask(ctx, provider, "q")
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	})

	t.Run("unsupported selector", func(t *testing.T) {
		provider := ada
		provider.LLM = "Gemini"
		_, err := NewClient(DefaultCatalog(), http.DefaultClient).Ask(ctx, provider, "q")
		assert.Equal(t, "Unsupported LLM type: Gemini", apperr.Message(err))
		assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	})

	t.Run("empty reply", func(t *testing.T) {
		srv, _ := newLLMServer(t, http.StatusOK, map[string]interface{}{"choices": []interface{}{}})
		_, err := NewClient(catalogFor(srv.URL), srv.Client()).Ask(ctx, ada, "q")
		assert.ErrorIs(t, err, ErrNoReply)
		assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	})

	t.Run("upstream failure", func(t *testing.T) {
		srv, _ := newLLMServer(t, http.StatusTooManyRequests, map[string]interface{}{"error": "rate limited"})
		_, err := NewClient(catalogFor(srv.URL), srv.Client()).Ask(ctx, ada, "q")
		assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "429")
	})
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`backends:
  Local:
    endpoint: http://localhost:11434/v1/chat/completions
    auth: bearer
    model: llama3
    system_prompt: "Assistant for {{.Name}}"
`), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	b, ok := cat.Lookup("local")
	require.True(t, ok)
	assert.Equal(t, "llama3", b.Model)
	prompt, err := b.systemPrompt("Ada", "")
	require.NoError(t, err)
	assert.Equal(t, "Assistant for Ada", prompt)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backends:\n  X:\n    endpoint: http://x\n    auth: basic\n"), 0o600))
	_, err = LoadCatalog(bad)
	assert.Error(t, err)

	cat, err = LoadCatalog("")
	require.NoError(t, err)
	_, ok = cat.Lookup("BastionGPT")
	assert.True(t, ok)
}
