package models

import "time"

// PlatformKind enumerates the supported helpdesk platforms. The set is
// closed; the adapter registry refuses anything else at startup.
type PlatformKind string

const (
	PlatformFreshchat PlatformKind = "freshchat"
	PlatformZendesk   PlatformKind = "zendesk"
)

// ValidPlatform reports whether the kind is one of the closed set.
func ValidPlatform(k PlatformKind) bool {
	switch k {
	case PlatformFreshchat, PlatformZendesk:
		return true
	}
	return false
}

// CredentialBundle holds a tenant's decrypted platform credentials. It lives
// only inside the adapter factory's cache window and is never persisted in
// clear text.
type CredentialBundle struct {
	APIKey    string `json:"api_key,omitempty"`    // freshchat
	APIURL    string `json:"api_url,omitempty"`    // platform base URL
	Subdomain string `json:"subdomain,omitempty"`  // zendesk
	Email     string `json:"email,omitempty"`      // zendesk basic-auth user
	APIToken  string `json:"api_token,omitempty"`  // zendesk basic-auth token
	InboxID   string `json:"inbox_id,omitempty"`   // freshchat inbox
}

// TenantContext is everything the bridge needs to talk to one tenant's
// helpdesk platform. Owned by the adapter factory for its cache lifetime.
type TenantContext struct {
	TenantID      string           `json:"tenant_id"`
	Platform      PlatformKind     `json:"platform"`
	Credentials   CredentialBundle `json:"-"`
	WebhookSecret string           `json:"-"`
	GreetingText  string           `json:"greeting_text,omitempty"`
	Active        bool             `json:"active"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
