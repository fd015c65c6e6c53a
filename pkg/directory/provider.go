package directory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
)

// Provider table field names.
const (
	FieldName          = "Name"
	FieldSpecialty     = "Specialty"
	FieldMedicalCenter = "Medical Center Name"
	FieldWebsiteURL    = "Website URL"
	FieldContactNumber = "Contact Number"
	FieldContactEmail  = "Contact Email"
	FieldOfficeHours   = "Office Hours"
	FieldAddress       = "Address"
	FieldLLM           = "LLM"
	FieldLLMKey        = "LLM Key"

	FieldZohoClientID       = "ZOHO_CLIENT_ID"
	FieldZohoClientSecret   = "ZOHO_CLIENT_SECRET"
	FieldZohoDC             = "ZOHO_DC"
	FieldZohoAccessToken    = "ZOHO_ACCESS_TOKEN"
	FieldZohoRefreshToken   = "ZOHO_REFRESH_TOKEN"
	FieldZohoTokenExpiresAt = "ZOHO_TOKEN_EXPIRES_AT"
)

// FallbackIDFields are tried, in order, after the configured identifier field.
var FallbackIDFields = []string{"provider_id", "Provider ID", "providerId", "ProviderId"}

// CandidateFields returns the de-duplicated identifier fields with override first.
func CandidateFields(override string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range append([]string{strings.TrimSpace(override)}, FallbackIDFields...) {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ProviderFromRecord is the one place loosely typed provider rows become typed values.
func ProviderFromRecord(rec recordstore.Record, idFields []string) models.Provider {
	f := rec.Fields
	p := models.Provider{
		RecordID:      rec.ID,
		Name:          text(f[FieldName]),
		Specialty:     text(f[FieldSpecialty]),
		MedicalCenter: text(f[FieldMedicalCenter]),
		WebsiteURL:    text(f[FieldWebsiteURL]),
		ContactNumber: text(f[FieldContactNumber]),
		ContactEmail:  text(f[FieldContactEmail]),
		OfficeHours:   text(f[FieldOfficeHours]),
		Address:       text(f[FieldAddress]),
		LLM:           strings.TrimSpace(text(f[FieldLLM])),
		LLMAPIKey:     strings.TrimSpace(text(f[FieldLLMKey])),
		CRM: models.CRMCredentials{
			ClientID:       strings.TrimSpace(text(f[FieldZohoClientID])),
			ClientSecret:   strings.TrimSpace(text(f[FieldZohoClientSecret])),
			DataCenter:     strings.TrimSpace(text(f[FieldZohoDC])),
			AccessToken:    text(f[FieldZohoAccessToken]),
			RefreshToken:   text(f[FieldZohoRefreshToken]),
			TokenExpiresAt: parseExpiry(f[FieldZohoTokenExpiresAt]),
		},
	}
	for _, field := range idFields {
		if v := text(f[field]); v != "" {
			p.ProviderID = v
			break
		}
	}
	return p
}

// TokenFields is the row update persisting a refreshed access token.
func TokenFields(accessToken string, expiresAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		FieldZohoAccessToken:    accessToken,
		FieldZohoTokenExpiresAt: formatExpiry(expiresAt),
	}
}

// ConnectionFields is the row update written when a provider completes the OAuth flow.
func ConnectionFields(creds models.CRMCredentials) map[string]interface{} {
	return map[string]interface{}{
		FieldZohoAccessToken:    creds.AccessToken,
		FieldZohoRefreshToken:   creds.RefreshToken,
		FieldZohoTokenExpiresAt: formatExpiry(creds.TokenExpiresAt),
		FieldZohoDC:             creds.DataCenter,
		FieldZohoClientID:       creds.ClientID,
		FieldZohoClientSecret:   creds.ClientSecret,
	}
}

// Expiry is stored as epoch milliseconds in a text field.
func formatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseExpiry(v interface{}) time.Time {
	switch val := v.(type) {
	case float64:
		return time.UnixMilli(int64(val))
	case int64:
		return time.UnixMilli(val)
	case int:
		return time.UnixMilli(int64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return time.UnixMilli(int64(ms))
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, text(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
