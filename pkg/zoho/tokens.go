package zoho

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
	"golang.org/x/oauth2"
)

const (
	// ExpirySkew is how far ahead of its recorded expiry a cached token stops being used.
	ExpirySkew           = 60 * time.Second
	DefaultTokenLifetime = 3600 * time.Second
	refreshTimeout       = 10 * time.Second
)

var (
	ErrNotConnected       = apperr.E(apperr.KindPrecondition, "zoho", "provider not connected to Zoho (no refresh token)")
	ErrMissingCredentials = apperr.E(apperr.KindPrecondition, "zoho", "missing Zoho client credentials for provider")
	ErrProviderNotFound   = directory.ErrProviderNotFound
)

// ProviderDirectory is the part of the provider directory the CRM integration needs.
type ProviderDirectory interface {
	Get(ctx context.Context, identifier string) (models.Provider, error)
	Update(ctx context.Context, recordID string, fields map[string]interface{}) error
}

type Token struct {
	AccessToken string
	DataCenter  string
}

// TokenManager hands out CRM access tokens per provider. The provider row is
// the only cache: a valid token is reused, otherwise the stored refresh token
// is exchanged and the result written back before it is returned.
type TokenManager struct {
	providers ProviderDirectory
	hosts     HostResolver
	client    *http.Client
	now       func() time.Time
}

func NewTokenManager(providers ProviderDirectory, hosts HostResolver, client *http.Client) *TokenManager {
	if hosts == nil {
		hosts = DefaultHosts
	}
	return &TokenManager{
		providers: providers,
		hosts:     hosts,
		client:    client,
		now:       time.Now,
	}
}

// AccessToken returns the cached token when it outlives ExpirySkew, refreshing otherwise.
func (m *TokenManager) AccessToken(ctx context.Context, providerID string) (Token, error) {
	return m.token(ctx, providerID, false)
}

// ForceRefresh skips the cache check and always exchanges the refresh token.
func (m *TokenManager) ForceRefresh(ctx context.Context, providerID string) (Token, error) {
	return m.token(ctx, providerID, true)
}

func (m *TokenManager) token(ctx context.Context, providerID string, force bool) (Token, error) {
	provider, err := m.providers.Get(ctx, providerID)
	if err != nil {
		return Token{}, err
	}

	creds := provider.CRM
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return Token{}, ErrMissingCredentials
	}
	dc := NormalizeDC(creds.DataCenter)

	if !force && m.cachedTokenValid(creds) {
		metrics.IncTokenCacheHit()
		return Token{AccessToken: creds.AccessToken, DataCenter: dc}, nil
	}

	if creds.RefreshToken == "" {
		return Token{}, ErrNotConnected
	}

	return m.refresh(ctx, provider, dc)
}

func (m *TokenManager) cachedTokenValid(creds models.CRMCredentials) bool {
	if creds.AccessToken == "" || creds.TokenExpiresAt.IsZero() {
		return false
	}
	return m.now().Add(ExpirySkew).Before(creds.TokenExpiresAt)
}

func (m *TokenManager) refresh(ctx context.Context, provider models.Provider, dc string) (Token, error) {
	log := logger.WithProvider(provider.ProviderID).WithField("dc", dc)

	cfg := oauthConfig(m.hosts(dc), provider.CRM.ClientID, provider.CRM.ClientSecret, "", nil)

	refreshCtx, cancel := context.WithTimeout(context.WithValue(ctx, oauth2.HTTPClient, m.client), refreshTimeout)
	defer cancel()

	tok, err := cfg.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: provider.CRM.RefreshToken}).Token()
	if err != nil {
		metrics.IncTokenRefreshFailure()
		log.WithError(err).Error("Zoho token refresh failed")
		return Token{}, apperr.Wrap(apperr.KindUpstream, "zoho.refresh", err)
	}

	expiresAt := m.now().Add(tokenLifetime(tok))
	if err := m.providers.Update(ctx, provider.RecordID, directory.TokenFields(tok.AccessToken, expiresAt)); err != nil {
		log.WithError(err).Error("Failed to persist refreshed Zoho token")
		return Token{}, err
	}

	metrics.IncTokenRefresh()
	log.WithField("expires_at", expiresAt.UTC().Format(time.RFC3339)).Info("Zoho access token refreshed")
	return Token{AccessToken: tok.AccessToken, DataCenter: dc}, nil
}

// oauthConfig builds the per-provider client; Zoho expects credentials in the form body.
func oauthConfig(hosts Hosts, clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   hosts.AuthURL(),
			TokenURL:  hosts.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tokenLifetime reads expires_in from the raw token response, defaulting to an hour.
func tokenLifetime(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return DefaultTokenLifetime
}
