package account

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cwproxy/pkg/cwerrors"
	"cwproxy/pkg/utils"
)

// networkRetry bounds retries for the account package's outbound calls
// (identity fetch, OAuth refresh, rate-limit probe): a handful of short
// backoffs to absorb transient upstream hiccups, never enough to stall the
// account pool's background loop for long.
var networkRetry = utils.RetryConfig{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

// IdentityInfo is what the Claude-web identity endpoint returns for a cookie.
type IdentityInfo struct {
	OrganizationUUID string
	Capabilities     []string
}

// IdentityClient resolves a cookie to organization identity and validates it.
// Implemented against the Claude-web HTTP client, which is out of scope here;
// the pool depends only on this narrow contract.
type IdentityClient interface {
	// FetchIdentity resolves org UUID and capabilities for a cookie.
	FetchIdentity(ctx context.Context, cookie string) (*IdentityInfo, error)
	// ValidateCookie reports whether the cookie is still accepted. A
	// diagnostic rejection (e.g. 401/403) must be distinguished from a
	// transient failure by returning a *cwerrors.Error of KindAuthenticationErr
	// in the former case.
	ValidateCookie(ctx context.Context, cookie string) error
}

// OAuth client constants, matching the first-party Claude OAuth app.
const (
	oauthTokenURL   = "https://console.anthropic.com/v1/oauth/token"
	oauthClientID   = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	oauthBetaHeader = "oauth-2025-04-20"
)

// oauthTokenResponse is the JSON body of the token endpoint.
type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// OAuthClient refreshes access tokens and attempts cookie-based OAuth enrollment.
type OAuthClient struct {
	http *http.Client
}

// NewOAuthClient returns an OAuthClient with a bounded per-call timeout.
func NewOAuthClient() *OAuthClient {
	return &OAuthClient{http: &http.Client{Timeout: 30 * time.Second}}
}

// Refresh exchanges a refresh token for a new access/refresh token pair.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*OAuthToken, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     oauthClientID,
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}

	var token *OAuthToken
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, strings.NewReader(string(body)))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("oauth refresh request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("oauth refresh read body: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return backoff.Permanent(fmt.Errorf("oauth refresh rejected (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("oauth refresh failed (status %d): %s", resp.StatusCode, truncate(string(respBody), 200))
		}

		var tr oauthTokenResponse
		if err := json.Unmarshal(respBody, &tr); err != nil {
			return backoff.Permanent(fmt.Errorf("oauth refresh parse: %w", err))
		}

		token = &OAuthToken{
			AccessToken:  tr.AccessToken,
			RefreshToken: tr.RefreshToken,
			ExpiresAt:    time.Now().Unix() + tr.ExpiresIn,
		}
		return nil
	}

	if err := utils.ExecuteWithRetryContext(ctx, op, networkRetry); err != nil {
		return nil, err
	}
	return token, nil
}

// codeChallenge returns the S256 PKCE challenge for a verifier, used by the
// (out-of-scope) web enrollment flow; kept here so best-effort cookie-only to
// OAuth enrollment can reuse the same primitive without depending on the UI layer.
func codeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// organizationsEndpoint is the Claude.ai identity endpoint: a cookie-bearing
// GET that lists the organizations the session belongs to, including the
// capability flags (membership tiers) used to derive is_pro/is_max.
const organizationsEndpoint = "/api/organizations"

type orgResponse struct {
	UUID         string   `json:"uuid"`
	Capabilities []string `json:"capabilities"`
}

// IdentityHTTPClient resolves cookies against the Claude.ai organizations
// endpoint. It is the concrete IdentityClient the pool is wired to; the
// rest of the Claude-web HTTP surface (conversations, uploads, messages) is
// out of scope here and lives behind session.WebClient instead.
type IdentityHTTPClient struct {
	http    *http.Client
	baseURL string
}

// NewIdentityHTTPClient returns an IdentityHTTPClient targeting baseURL
// (e.g. "https://claude.ai").
func NewIdentityHTTPClient(baseURL string) *IdentityHTTPClient {
	return &IdentityHTTPClient{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *IdentityHTTPClient) fetchOrganizations(ctx context.Context, cookie string) ([]orgResponse, error) {
	var orgs []orgResponse

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+organizationsEndpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Cookie", cookie)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("identity fetch request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(cwerrors.New(cwerrors.KindAuthenticationErr, fmt.Sprintf("identity fetch rejected (status %d)", resp.StatusCode)))
		}
		if resp.StatusCode != http.StatusOK {
			return cwerrors.New(cwerrors.KindNetworkError, fmt.Sprintf("identity fetch failed (status %d)", resp.StatusCode))
		}

		var decoded []orgResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("identity fetch parse: %w", err))
		}
		orgs = decoded
		return nil
	}

	if err := utils.ExecuteWithRetryContext(ctx, op, networkRetry); err != nil {
		return nil, err
	}
	return orgs, nil
}

// FetchIdentity returns the first organization's uuid and capabilities.
func (c *IdentityHTTPClient) FetchIdentity(ctx context.Context, cookie string) (*IdentityInfo, error) {
	orgs, err := c.fetchOrganizations(ctx, cookie)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, fmt.Errorf("identity fetch: no organizations for cookie")
	}
	return &IdentityInfo{OrganizationUUID: orgs[0].UUID, Capabilities: orgs[0].Capabilities}, nil
}

// ValidateCookie reports whether cookie is still accepted.
func (c *IdentityHTTPClient) ValidateCookie(ctx context.Context, cookie string) error {
	_, err := c.fetchOrganizations(ctx, cookie)
	return err
}
