// Package session owns a live Claude-web conversation bound to one account.
package session

import (
	"context"
	"io"
	"sync"

	"cwproxy/pkg/account"
)

// WebClient is the narrow contract a Session needs from the Claude-web HTTP
// client. The client's wire details (headers, proxy selection, impersonation)
// are out of scope here; Session depends only on this interface.
type WebClient interface {
	CreateConversation(ctx context.Context, acc *account.Account) (conversationID string, err error)
	DeleteConversation(ctx context.Context, acc *account.Account, conversationID string) error
	UploadFile(ctx context.Context, acc *account.Account, conversationID string, data []byte, filename, contentType string) (fileID string, err error)
	SetPaprikaMode(ctx context.Context, acc *account.Account, conversationID string, mode string) error
	SetWebSearch(ctx context.Context, acc *account.Account, conversationID string, enabled bool) error
	SendMessage(ctx context.Context, acc *account.Account, conversationID string, payload map[string]any) (io.ReadCloser, error)
}

// Session owns one Claude-web conversation lifecycle and the account
// assignment for one logical conversation id. All operations are serialized
// per Session: the upstream conversation is not reentrant-safe.
type Session struct {
	mu sync.Mutex

	id             string
	account        *account.Account
	client         WebClient
	conversationID string
	initialized    bool
}

// New binds a Session to an already-selected account. Reassignment on
// failure is the Account Pool's concern, not the Session's.
func New(id string, acc *account.Account, client WebClient) *Session {
	return &Session{id: id, account: acc, client: client}
}

// ID returns the logical session id.
func (s *Session) ID() string { return s.id }

// Account returns the account currently bound to this session.
func (s *Session) Account() *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// EnsureConversationInitialized creates the upstream conversation if one does
// not already exist. Idempotent.
func (s *Session) EnsureConversationInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	id, err := s.client.CreateConversation(ctx, s.account)
	if err != nil {
		return err
	}
	s.conversationID = id
	s.initialized = true
	return nil
}

// UploadFile uploads bytes as filename/contentType and returns the upstream file id.
func (s *Session) UploadFile(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.UploadFile(ctx, s.account, s.conversationID, data, filename, contentType)
}

// SetPaprikaMode sets the conversation-level extended-thinking flag. mode is
// "extended" or "" (cleared).
func (s *Session) SetPaprikaMode(ctx context.Context, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.SetPaprikaMode(ctx, s.account, s.conversationID, mode)
}

// SetWebSearch toggles the conversation-level web-search flag.
func (s *Session) SetWebSearch(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.SetWebSearch(ctx, s.account, s.conversationID, enabled)
}

// SendMessage sends payload and returns the raw upstream byte stream.
func (s *Session) SendMessage(ctx context.Context, payload map[string]any) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.SendMessage(ctx, s.account, s.conversationID, payload)
}

// Close deletes the upstream conversation, best-effort.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	return s.client.DeleteConversation(ctx, s.account, s.conversationID)
}
