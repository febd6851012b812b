package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"cwproxy/pkg/account"
	"cwproxy/pkg/cwerrors"
)

// HTTPWebClient is a plain net/http implementation of WebClient against the
// claude.ai conversation surface. It deliberately does not attempt browser
// impersonation/fingerprinting — that HTTP client is an external collaborator;
// this implementation exists to satisfy the interface and exercise the rest
// of the pipeline end to end.
type HTTPWebClient struct {
	http    *http.Client
	baseURL string
}

// NewHTTPWebClient targets baseURL (e.g. "https://claude.ai").
func NewHTTPWebClient(baseURL string) *HTTPWebClient {
	return &HTTPWebClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *HTTPWebClient) orgPath(acc *account.Account, suffix string) string {
	return fmt.Sprintf("%s/api/organizations/%s%s", c.baseURL, acc.OrganizationUUID, suffix)
}

func (c *HTTPWebClient) do(ctx context.Context, acc *account.Account, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if acc.HasCookie() {
		req.Header.Set("Cookie", acc.CookieValue)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

type createConversationResponse struct {
	UUID string `json:"uuid"`
}

// CreateConversation opens a new chat conversation under the account's organization.
func (c *HTTPWebClient) CreateConversation(ctx context.Context, acc *account.Account) (string, error) {
	body, _ := json.Marshal(map[string]any{"name": ""})
	resp, err := c.do(ctx, acc, http.MethodPost, c.orgPath(acc, "/chat_conversations"), bytes.NewReader(body), "application/json")
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create conversation: status %d", resp.StatusCode)
	}
	var parsed createConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("create conversation: parse response: %w", err)
	}
	return parsed.UUID, nil
}

// DeleteConversation removes a conversation, best-effort.
func (c *HTTPWebClient) DeleteConversation(ctx context.Context, acc *account.Account, conversationID string) error {
	resp, err := c.do(ctx, acc, http.MethodDelete, c.orgPath(acc, "/chat_conversations/"+conversationID), nil, "")
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete conversation: status %d", resp.StatusCode)
	}
	return nil
}

type uploadFileResponse struct {
	FileUUID string `json:"file_uuid"`
}

// UploadFile uploads an inline image/file to the organization's file store.
func (c *HTTPWebClient) UploadFile(ctx context.Context, acc *account.Account, conversationID string, data []byte, filename, contentType string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := c.do(ctx, acc, http.MethodPost, c.orgPath(acc, "/upload"), &buf, writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload file: status %d", resp.StatusCode)
	}
	var parsed uploadFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("upload file: parse response: %w", err)
	}
	return parsed.FileUUID, nil
}

// SetPaprikaMode toggles the conversation's extended-thinking setting.
func (c *HTTPWebClient) SetPaprikaMode(ctx context.Context, acc *account.Account, conversationID string, mode string) error {
	body, _ := json.Marshal(map[string]any{"paprika_mode": mode})
	resp, err := c.do(ctx, acc, http.MethodPut, c.orgPath(acc, "/chat_conversations/"+conversationID+"/settings"), bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("set paprika mode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("set paprika mode: status %d", resp.StatusCode)
	}
	return nil
}

// SetWebSearch toggles the conversation's web-search setting.
func (c *HTTPWebClient) SetWebSearch(ctx context.Context, acc *account.Account, conversationID string, enabled bool) error {
	body, _ := json.Marshal(map[string]any{"web_search": enabled})
	resp, err := c.do(ctx, acc, http.MethodPut, c.orgPath(acc, "/chat_conversations/"+conversationID+"/settings"), bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("set web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("set web search: status %d", resp.StatusCode)
	}
	return nil
}

// SendMessage posts the completion payload and returns the raw SSE body for
// the caller to hand to streaming.NewParser.
func (c *HTTPWebClient) SendMessage(ctx context.Context, acc *account.Account, conversationID string, payload map[string]any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, acc, http.MethodPost, c.orgPath(acc, "/chat_conversations/"+conversationID+"/completion"), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, cwerrors.New(cwerrors.KindRateLimited, "send message rate limited")
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("send message: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
