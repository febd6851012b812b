package session

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwproxy/pkg/account"
)

type fakeClient struct {
	createCalls int
	paprikaMode string
	webSearch   bool
}

func (f *fakeClient) CreateConversation(ctx context.Context, acc *account.Account) (string, error) {
	f.createCalls++
	return "conv-1", nil
}
func (f *fakeClient) DeleteConversation(ctx context.Context, acc *account.Account, id string) error {
	return nil
}
func (f *fakeClient) UploadFile(ctx context.Context, acc *account.Account, convID string, data []byte, filename, contentType string) (string, error) {
	return "file-1", nil
}
func (f *fakeClient) SetPaprikaMode(ctx context.Context, acc *account.Account, convID string, mode string) error {
	f.paprikaMode = mode
	return nil
}
func (f *fakeClient) SetWebSearch(ctx context.Context, acc *account.Account, convID string, enabled bool) error {
	f.webSearch = enabled
	return nil
}
func (f *fakeClient) SendMessage(ctx context.Context, acc *account.Account, convID string, payload map[string]any) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

func TestEnsureConversationInitializedIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	sess := New("sess-1", &account.Account{OrganizationUUID: "org-1"}, client)

	require.NoError(t, sess.EnsureConversationInitialized(context.Background()))
	require.NoError(t, sess.EnsureConversationInitialized(context.Background()))
	assert.Equal(t, 1, client.createCalls)
}

func TestSetPaprikaModeAndWebSearch(t *testing.T) {
	client := &fakeClient{}
	sess := New("sess-1", &account.Account{OrganizationUUID: "org-1"}, client)

	require.NoError(t, sess.SetPaprikaMode(context.Background(), "extended"))
	require.NoError(t, sess.SetWebSearch(context.Background(), true))
	assert.Equal(t, "extended", client.paprikaMode)
	assert.True(t, client.webSearch)
}

func TestManagerGetOrCreateReusesSession(t *testing.T) {
	m := NewManager()
	calls := 0
	create := func() (*Session, error) {
		calls++
		return New("sess-1", &account.Account{OrganizationUUID: "org-1"}, &fakeClient{}), nil
	}

	s1, err := m.GetOrCreate("sess-1", create)
	require.NoError(t, err)
	s2, err := m.GetOrCreate("sess-1", create)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls)
}
