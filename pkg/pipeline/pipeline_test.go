package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwproxy/pkg/account"
	"cwproxy/pkg/builder"
	"cwproxy/pkg/messages"
	"cwproxy/pkg/session"
	"cwproxy/pkg/streaming"
)

type fakeIdentity struct{}

func (fakeIdentity) FetchIdentity(ctx context.Context, cookie string) (*account.IdentityInfo, error) {
	return &account.IdentityInfo{OrganizationUUID: "org-1"}, nil
}
func (fakeIdentity) ValidateCookie(ctx context.Context, cookie string) error { return nil }

type fakeWebClient struct{}

func (fakeWebClient) CreateConversation(ctx context.Context, acc *account.Account) (string, error) {
	return "conv-1", nil
}
func (fakeWebClient) DeleteConversation(ctx context.Context, acc *account.Account, id string) error {
	return nil
}
func (fakeWebClient) UploadFile(ctx context.Context, acc *account.Account, convID string, data []byte, filename, contentType string) (string, error) {
	return "file-1", nil
}
func (fakeWebClient) SetPaprikaMode(ctx context.Context, acc *account.Account, convID string, mode string) error {
	return nil
}
func (fakeWebClient) SetWebSearch(ctx context.Context, acc *account.Account, convID string, enabled bool) error {
	return nil
}
func (fakeWebClient) SendMessage(ctx context.Context, acc *account.Account, convID string, payload map[string]any) (io.ReadCloser, error) {
	raw := `data: {"type":"ping"}` + "\n\n"
	return io.NopCloser(strings.NewReader(raw)), nil
}

type fakeMerger struct{}

func (fakeMerger) Merge(msgs []messages.Message, system string) (string, []messages.InlineImage, error) {
	return "hello", nil, nil
}

func TestPipelineHandleEndToEnd(t *testing.T) {
	pool := account.NewPool(2, fakeIdentity{}, account.NewOAuthClient(), nil, account.NewStore("", nil), nil, nil)
	_, err := pool.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)

	b := builder.New(fakeMerger{}, builder.Config{}, nil)
	registry := account.NewRegistry(0)
	sessions := session.NewManager()
	factory := func(sessionID string, acc *account.Account) *session.Session {
		return session.New(sessionID, acc, fakeWebClient{})
	}

	p := New(pool, b, registry, sessions, factory, true, nil)

	src, err := p.Handle(context.Background(), "sess-1", &messages.Request{
		Messages: []messages.Message{{Role: "user"}},
	})
	require.NoError(t, err)

	ev, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, streaming.EventPing, ev.Type)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}
