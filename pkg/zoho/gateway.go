package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
)

// Response is a CRM answer of any status. Only transport failures are errors,
// so callers can tell a duplicate lead from an outage.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v. An empty body (Zoho answers 204 to
// searches without hits) leaves v untouched.
func (r *Response) Decode(v interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Payload returns the body as generic JSON, or the raw text when it is not JSON.
func (r *Response) Payload() interface{} {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return string(r.Body)
	}
	return v
}

// Requester issues authenticated CRM calls on behalf of a provider.
type Requester interface {
	Do(ctx context.Context, providerID, method, path string, body interface{}) (*Response, error)
}

type tokenSource interface {
	AccessToken(ctx context.Context, providerID string) (Token, error)
	ForceRefresh(ctx context.Context, providerID string) (Token, error)
}

// Gateway attaches provider tokens to CRM calls and retries exactly once, with
// a forcibly refreshed token, when the first attempt comes back 401.
type Gateway struct {
	tokens tokenSource
	hosts  HostResolver
	client *http.Client
}

func NewGateway(tokens *TokenManager, hosts HostResolver, client *http.Client) *Gateway {
	if hosts == nil {
		hosts = DefaultHosts
	}
	return &Gateway{tokens: tokens, hosts: hosts, client: client}
}

func (g *Gateway) Do(ctx context.Context, providerID, method, path string, body interface{}) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal crm payload: %w", err)
		}
	}

	tok, err := g.tokens.AccessToken(ctx, providerID)
	if err != nil {
		return nil, err
	}

	resp, err := g.send(ctx, tok, method, path, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	metrics.IncCRMUnauthorizedRetry()
	logger.WithProvider(providerID).WithFields(map[string]interface{}{
		"method": method,
		"path":   path,
	}).Warn("Zoho rejected access token, refreshing and retrying once")

	fresh, err := g.tokens.ForceRefresh(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return g.send(ctx, fresh, method, path, payload)
}

func (g *Gateway) send(ctx context.Context, tok Token, method, path string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.hosts(tok.DataCenter).API+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	metrics.IncCRMRequest()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "zoho.request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "zoho.request", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
