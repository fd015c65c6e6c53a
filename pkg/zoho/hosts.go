// Package zoho integrates providers with Zoho CRM: per-provider OAuth tokens,
// authenticated REST calls and the lead workflow built on them.
package zoho

import (
	"strings"
)

const DefaultDataCenter = "com"

// Hosts are the accounts (OAuth) and API base URLs of one data center.
type Hosts struct {
	Accounts string
	API      string
}

func (h Hosts) AuthURL() string {
	return h.Accounts + "/oauth/v2/auth"
}

func (h Hosts) TokenURL() string {
	return h.Accounts + "/oauth/v2/token"
}

// HostResolver maps a data center code onto its hosts.
type HostResolver func(dc string) Hosts

func DefaultHosts(dc string) Hosts {
	dc = NormalizeDC(dc)
	return Hosts{
		Accounts: "https://accounts.zoho." + dc,
		API:      "https://www.zohoapis." + dc,
	}
}

func NormalizeDC(dc string) string {
	dc = strings.TrimSpace(dc)
	if dc == "" {
		return DefaultDataCenter
	}
	return dc
}

// StaticHosts pins every data center to the same hosts.
func StaticHosts(accounts, api string) HostResolver {
	return func(string) Hosts {
		return Hosts{Accounts: strings.TrimRight(accounts, "/"), API: strings.TrimRight(api, "/")}
	}
}
