package zoho

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"golang.org/x/oauth2"
)

const exchangeTimeout = 12 * time.Second

var (
	ErrNoRefreshToken     = apperr.E(apperr.KindUpstream, "zoho.Complete", "no refresh token from Zoho")
	ErrOAuthNotConfigured = apperr.E(apperr.KindConfiguration, "zoho", "missing Zoho client, secret or redirect configuration")
)

// OAuthSettings are the environment-level defaults; a provider row may
// override the client id and secret.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	DataCenter   string
	Scopes       []string
}

// OAuthFlow provisions a provider's CRM tokens through the authorization code
// grant. Nothing is stored between the two legs: the provider identifier
// travels in the state parameter.
type OAuthFlow struct {
	providers ProviderDirectory
	hosts     HostResolver
	client    *http.Client
	settings  OAuthSettings
	now       func() time.Time
}

func NewOAuthFlow(providers ProviderDirectory, hosts HostResolver, client *http.Client, settings OAuthSettings) *OAuthFlow {
	if hosts == nil {
		hosts = DefaultHosts
	}
	return &OAuthFlow{
		providers: providers,
		hosts:     hosts,
		client:    client,
		settings:  settings,
		now:       time.Now,
	}
}

// AuthURL returns the consent page URL for providerID.
func (f *OAuthFlow) AuthURL(ctx context.Context, providerID string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return "", apperr.E(apperr.KindValidation, "zoho.AuthURL", "Invalid providerId")
	}

	provider, err := f.providers.Get(ctx, providerID)
	if err != nil {
		return "", err
	}

	cfg, _, err := f.config(provider, false)
	if err != nil {
		return "", err
	}

	return cfg.AuthCodeURL(providerID, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Complete exchanges code for a token pair and stores it on the provider named
// by state. A response without a refresh token stores nothing.
func (f *OAuthFlow) Complete(ctx context.Context, code, state string) (models.Provider, error) {
	code = strings.TrimSpace(code)
	state = strings.TrimSpace(state)
	if code == "" || state == "" {
		return models.Provider{}, apperr.E(apperr.KindValidation, "zoho.Complete", "Missing code/state")
	}

	provider, err := f.providers.Get(ctx, state)
	if err != nil {
		return models.Provider{}, err
	}

	cfg, dc, err := f.config(provider, true)
	if err != nil {
		return models.Provider{}, err
	}

	exchangeCtx, cancel := context.WithTimeout(context.WithValue(ctx, oauth2.HTTPClient, f.client), exchangeTimeout)
	defer cancel()

	log := logger.WithProvider(state).WithField("dc", dc)
	tok, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		log.WithError(err).Error("Zoho authorization code exchange failed")
		return models.Provider{}, apperr.Wrap(apperr.KindUpstream, "zoho.Complete", err)
	}
	if tok.RefreshToken == "" {
		log.Error("Zoho token response carried no refresh_token")
		return models.Provider{}, ErrNoRefreshToken
	}

	creds := models.CRMCredentials{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		DataCenter:     dc,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: f.now().Add(tokenLifetime(tok)),
	}
	if err := f.providers.Update(ctx, provider.RecordID, directory.ConnectionFields(creds)); err != nil {
		return models.Provider{}, err
	}

	provider.CRM = creds
	log.Info("Provider connected to Zoho")
	return provider, nil
}

func (f *OAuthFlow) config(provider models.Provider, needSecret bool) (*oauth2.Config, string, error) {
	dc := NormalizeDC(firstNonEmpty(provider.CRM.DataCenter, f.settings.DataCenter))
	clientID := firstNonEmpty(provider.CRM.ClientID, f.settings.ClientID)
	clientSecret := firstNonEmpty(provider.CRM.ClientSecret, f.settings.ClientSecret)

	if clientID == "" || f.settings.RedirectURI == "" || (needSecret && clientSecret == "") {
		return nil, "", ErrOAuthNotConfigured
	}

	// Zoho reads scope as a comma separated list.
	scopes := []string{strings.Join(f.settings.Scopes, ",")}
	return oauthConfig(f.hosts(dc), clientID, clientSecret, f.settings.RedirectURI, scopes), dc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
