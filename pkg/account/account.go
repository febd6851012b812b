// Package account implements the process-wide account pool: selection, load
// balancing, rate-limit tracking and recovery, OAuth refresh, and atomic
// persistence for Claude.ai-authenticated accounts.
package account

import "time"

// AuthType describes which credentials an Account carries.
type AuthType string

const (
	AuthCookieOnly AuthType = "cookie_only"
	AuthOAuthOnly  AuthType = "oauth_only"
	AuthBoth       AuthType = "both"
)

// Status is the account's current usability.
type Status string

const (
	StatusValid       Status = "valid"
	StatusRateLimited Status = "rate_limited"
	StatusInvalid     Status = "invalid"
)

// OAuthToken holds an OAuth credential set for the Claude API.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}

// ExpiresWithin reports whether the token expires within d of now.
func (t *OAuthToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t == nil {
		return false
	}
	return time.Unix(t.ExpiresAt, 0).Sub(now) < d
}

// Account is the unit of identity in the pool.
type Account struct {
	OrganizationUUID string      `json:"organization_uuid"`
	AuthType         AuthType    `json:"auth_type"`
	CookieValue      string      `json:"cookie_value,omitempty"`
	OAuthToken       *OAuthToken `json:"oauth_token,omitempty"`
	Capabilities     []string    `json:"capabilities,omitempty"`
	Status           Status      `json:"status"`
	ResetsAt         *time.Time  `json:"resets_at,omitempty"`
	LastUsed         time.Time   `json:"last_used"`

	// sessionCount mirrors the pool's session index cardinality for this
	// account; the pool is the source of truth, this is a read convenience
	// populated at snapshot time.
	sessionCount int
}

// HasCapability reports membership in the capabilities set.
func (a *Account) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// IsPro reports the derived "pro" capability.
func (a *Account) IsPro() bool { return a.HasCapability("pro") }

// IsMax reports the derived "max" capability.
func (a *Account) IsMax() bool { return a.HasCapability("max") }

// HasOAuth reports whether the account carries usable OAuth credentials.
func (a *Account) HasOAuth() bool {
	return a.AuthType != AuthCookieOnly && a.OAuthToken != nil
}

// HasCookie reports whether the account carries a cookie credential.
func (a *Account) HasCookie() bool {
	return a.AuthType != AuthOAuthOnly && a.CookieValue != ""
}

// SessionCount returns the number of sessions currently bound to this account,
// as observed when the account was copied out of the pool.
func (a *Account) SessionCount() int { return a.sessionCount }

// Clone returns a deep-enough copy safe to hand to callers outside the pool lock.
func (a *Account) clone() *Account {
	cp := *a
	if a.OAuthToken != nil {
		tok := *a.OAuthToken
		cp.OAuthToken = &tok
	}
	if a.ResetsAt != nil {
		t := *a.ResetsAt
		cp.ResetsAt = &t
	}
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	return &cp
}
