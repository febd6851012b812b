package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cwproxy/pkg/cwerrors"
	"cwproxy/pkg/utils"
)

// ProbeResult is the outcome of a rate-limit probe.
type ProbeResult struct {
	Status   Status
	ResetsAt *time.Time
}

// ConversationClient is the narrow Claude-web surface the cookie probe path
// needs: open a throwaway conversation, send one minimal message, tear it
// down again. session.HTTPWebClient satisfies this without any adapter.
type ConversationClient interface {
	CreateConversation(ctx context.Context, acc *Account) (string, error)
	SendMessage(ctx context.Context, acc *Account, conversationID string, payload map[string]any) (io.ReadCloser, error)
	DeleteConversation(ctx context.Context, acc *Account, conversationID string) error
}

// Prober issues a minimal chat request to verify whether a rate-limited
// account has recovered.
type Prober struct {
	http    *http.Client
	baseURL string
	conv    ConversationClient
}

// NewProber targets baseURL for the OAuth probe path. conv drives the cookie
// probe path and may be nil if only OAuth accounts will ever be probed.
func NewProber(baseURL string, conv ConversationClient) *Prober {
	return &Prober{http: &http.Client{Timeout: 30 * time.Second}, baseURL: strings.TrimRight(baseURL, "/"), conv: conv}
}

// Probe checks account recovery: OAuth-bearing accounts probe the direct API
// with a minimal /v1/messages call, cookie-only accounts probe Claude-web by
// opening and tearing down a throwaway conversation.
func (p *Prober) Probe(ctx context.Context, acc *Account) (ProbeResult, error) {
	if acc.HasOAuth() {
		return p.probeOAuth(ctx, acc)
	}
	if acc.HasCookie() {
		return p.probeCookie(ctx, acc)
	}
	return ProbeResult{}, cwerrors.New(cwerrors.KindAuthenticationErr, "account has no credential for probing")
}

func (p *Prober) probeOAuth(ctx context.Context, acc *Account) (ProbeResult, error) {
	body, _ := json.Marshal(map[string]any{
		"model":      "claude-sonnet-4-20250514",
		"max_tokens": 1,
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
	})

	var result ProbeResult
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", strings.NewReader(string(body)))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+acc.OAuthToken.AccessToken)
		req.Header.Set("anthropic-beta", oauthBetaHeader)
		req.Header.Set("anthropic-version", "2023-06-01")
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.http.Do(req)
		if err != nil {
			return fmt.Errorf("probe request failed: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			result = ProbeResult{Status: StatusValid}
			return nil
		case http.StatusTooManyRequests:
			result = ProbeResult{Status: StatusRateLimited, ResetsAt: parseRateLimitReset(resp.Header.Get("anthropic-ratelimit-unified-reset"))}
			return nil
		default:
			return backoff.Permanent(fmt.Errorf("probe returned status %d", resp.StatusCode))
		}
	}

	if err := utils.ExecuteWithRetryContext(ctx, op, networkRetry); err != nil {
		return ProbeResult{}, cwerrors.Wrap(cwerrors.KindNetworkError, "probe failed", err)
	}
	return result, nil
}

// probeCookie opens a throwaway conversation, sends a minimal message, and
// tears the conversation down again, classifying the outcome by whether
// SendMessage reports KindRateLimited. The conversation is deleted
// best-effort on a fresh context so a caller-cancelled ctx doesn't skip cleanup.
func (p *Prober) probeCookie(ctx context.Context, acc *Account) (ProbeResult, error) {
	if p.conv == nil {
		return ProbeResult{}, cwerrors.New(cwerrors.KindAuthenticationErr, "no conversation client configured for cookie probing")
	}

	convID, err := p.conv.CreateConversation(ctx, acc)
	if err != nil {
		return ProbeResult{}, cwerrors.Wrap(cwerrors.KindNetworkError, "probe create conversation failed", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.conv.DeleteConversation(cleanupCtx, acc, convID)
	}()

	payload := map[string]any{
		"prompt":      "hi",
		"timezone":    "UTC",
		"attachments": []map[string]string{},
	}
	stream, err := p.conv.SendMessage(ctx, acc, convID, payload)
	if err != nil {
		var cerr *cwerrors.Error
		if errors.As(err, &cerr) && cerr.Kind == cwerrors.KindRateLimited {
			return ProbeResult{Status: StatusRateLimited, ResetsAt: cerr.ResetsAt}, nil
		}
		return ProbeResult{}, cwerrors.Wrap(cwerrors.KindNetworkError, "probe send message failed", err)
	}
	stream.Close()
	return ProbeResult{Status: StatusValid}, nil
}

// parseRateLimitReset parses the anthropic-ratelimit-unified-reset header.
// Only ISO-8601 with a literal "Z" suffix is accepted; anything else is
// silently ignored (no resets_at), matching the recommended-but-unreviewed
// upstream behavior.
func parseRateLimitReset(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	normalized := strings.Replace(raw, "Z", "+00:00", 1)
	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return nil
	}
	return &t
}
