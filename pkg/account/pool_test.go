package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu    sync.Mutex
	calls int
	info  IdentityInfo
	err   error
}

func (f *fakeIdentity) FetchIdentity(ctx context.Context, cookie string) (*IdentityInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	if f.err != nil {
		return nil, f.err
	}
	info := f.info
	return &info, nil
}

func (f *fakeIdentity) ValidateCookie(ctx context.Context, cookie string) error { return nil }

func newTestPool(identity IdentityClient) *Pool {
	return NewPool(2, identity, NewOAuthClient(), nil, NewStore("", nil), nil, nil)
}

func TestAddAccountCreatesNewAccount(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1", Capabilities: []string{"pro"}}}
	p := newTestPool(ident)

	acc, err := p.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "org-1", acc.OrganizationUUID)
	assert.True(t, acc.IsPro())
	assert.Equal(t, AuthCookieOnly, acc.AuthType)
}

func TestAddAccountConcurrentSameCookieSingleFetch(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1"}}
	p := newTestPool(ident)

	var wg sync.WaitGroup
	results := make([]*Account, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := p.AddAccount(context.Background(), "cookie-shared", nil, "")
			require.NoError(t, err)
			results[i] = acc
		}()
	}
	wg.Wait()

	for _, acc := range results {
		assert.Equal(t, "org-1", acc.OrganizationUUID)
	}
	assert.Equal(t, 1, len(p.Status()))
	assert.Equal(t, 1, ident.calls)
}

func TestGetAccountForSessionBindsAndReuses(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1"}}
	p := newTestPool(ident)
	_, err := p.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)

	acc1, err := p.GetAccountForSession("sess-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "org-1", acc1.OrganizationUUID)

	acc2, err := p.GetAccountForSession("sess-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, acc1.OrganizationUUID, acc2.OrganizationUUID)
}

func TestGetAccountForSessionRespectsSessionCap(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1"}}
	p := NewPool(1, ident, NewOAuthClient(), nil, NewStore("", nil), nil, nil)
	_, err := p.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)

	_, err = p.GetAccountForSession("sess-1", nil, nil)
	require.NoError(t, err)

	_, err = p.GetAccountForSession("sess-2", nil, nil)
	assert.Error(t, err)
}

func TestGetAccountForSessionNoAccountsAvailable(t *testing.T) {
	p := newTestPool(&fakeIdentity{})
	_, err := p.GetAccountForSession("sess-1", nil, nil)
	assert.Error(t, err)
}

func TestRemoveAccountDropsSessions(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1"}}
	p := newTestPool(ident)
	acc, err := p.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)
	_, err = p.GetAccountForSession("sess-1", nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.RemoveAccount(acc.OrganizationUUID))
	assert.Len(t, p.Status(), 0)

	_, err = p.GetAccountForSession("sess-1", nil, nil)
	assert.Error(t, err)
}

func TestBackgroundLoopRecoversRateLimitedAccount(t *testing.T) {
	ident := &fakeIdentity{info: IdentityInfo{OrganizationUUID: "org-1"}}
	p := newTestPool(ident)
	acc, err := p.AddAccount(context.Background(), "cookie-a", nil, "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Second)
	p.mu.Lock()
	p.accounts[acc.OrganizationUUID].Status = StatusRateLimited
	p.accounts[acc.OrganizationUUID].ResetsAt = &past
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 10*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	cancel()
	p.Stop()

	statuses := p.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusValid, statuses[0].Status)
	assert.Nil(t, statuses[0].ResetsAt)
}
