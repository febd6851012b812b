package account

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cwproxy/pkg/cwerrors"
	"cwproxy/pkg/notify"
)

// Pool is the process-wide registry of accounts. Many-reader operations
// (selection, status snapshots) may run concurrently; all mutations and any
// read that must see a consistent multi-field snapshot take mu.
type Pool struct {
	mu sync.Mutex

	accounts       map[string]*Account   // org_uuid -> account
	cookieToUUID   map[string]string     // cookie_value -> org_uuid
	sessionToUUID  map[string]string     // session_id -> org_uuid
	uuidToSessions map[string]map[string]struct{}

	maxSessionsPerAccount int
	identity              IdentityClient
	oauth                 *OAuthClient
	prober                *Prober
	store                 *Store
	notifier              notify.Notifier
	log                   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool constructs an empty Pool. Call Load to populate it from disk before
// serving traffic, and Start to launch the background loop.
func NewPool(maxSessionsPerAccount int, identity IdentityClient, oauth *OAuthClient, prober *Prober, store *Store, notifier notify.Notifier, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Pool{
		accounts:              make(map[string]*Account),
		cookieToUUID:          make(map[string]string),
		sessionToUUID:         make(map[string]string),
		uuidToSessions:        make(map[string]map[string]struct{}),
		maxSessionsPerAccount: maxSessionsPerAccount,
		identity:              identity,
		oauth:                 oauth,
		prober:                prober,
		store:                 store,
		notifier:              notifier,
		log:                   log,
	}
}

// ---------------------------------------------------------------------------
// 4.5.1 Selection
// ---------------------------------------------------------------------------

// GetAccountForSession returns the account bound to sessionID, or selects and
// binds a new one. isPro/isMax, when non-nil, restrict candidates to accounts
// with the matching derived capability.
func (p *Pool) GetAccountForSession(sessionID string, isPro, isMax *bool) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uuid, ok := p.sessionToUUID[sessionID]; ok {
		if acc, ok := p.accounts[uuid]; ok && acc.Status == StatusValid {
			acc.LastUsed = time.Now()
			return acc.clone(), nil
		}
		p.unbindLocked(sessionID)
	}

	var best *Account
	for _, acc := range p.accounts {
		if !p.eligibleLocked(acc, isPro, isMax) {
			continue
		}
		if best == nil ||
			p.sessionCountLocked(acc.OrganizationUUID) < p.sessionCountLocked(best.OrganizationUUID) ||
			(p.sessionCountLocked(acc.OrganizationUUID) == p.sessionCountLocked(best.OrganizationUUID) && acc.LastUsed.Before(best.LastUsed)) {
			best = acc
		}
	}
	if best == nil {
		return nil, cwerrors.New(cwerrors.KindNoAccountsAvail, "no eligible account for session")
	}

	p.bindLocked(sessionID, best.OrganizationUUID)
	best.LastUsed = time.Now()
	return best.clone(), nil
}

// GetAccountForOAuth picks the OAuth-capable, valid account with the oldest LastUsed.
func (p *Pool) GetAccountForOAuth(isPro, isMax *bool) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Account
	for _, acc := range p.accounts {
		if acc.Status != StatusValid || !acc.HasOAuth() {
			continue
		}
		if isPro != nil && acc.IsPro() != *isPro {
			continue
		}
		if isMax != nil && acc.IsMax() != *isMax {
			continue
		}
		if best == nil || acc.LastUsed.Before(best.LastUsed) {
			best = acc
		}
	}
	if best == nil {
		return nil, cwerrors.New(cwerrors.KindNoAccountsAvail, "no eligible oauth account")
	}
	return best.clone(), nil
}

func (p *Pool) eligibleLocked(acc *Account, isPro, isMax *bool) bool {
	if acc.Status != StatusValid {
		return false
	}
	if acc.AuthType != AuthBoth && acc.AuthType != AuthCookieOnly {
		return false
	}
	if isPro != nil && acc.IsPro() != *isPro {
		return false
	}
	if isMax != nil && acc.IsMax() != *isMax {
		return false
	}
	return p.sessionCountLocked(acc.OrganizationUUID) < p.maxSessionsPerAccount
}

func (p *Pool) sessionCountLocked(uuid string) int {
	return len(p.uuidToSessions[uuid])
}

func (p *Pool) bindLocked(sessionID, uuid string) {
	p.sessionToUUID[sessionID] = uuid
	if p.uuidToSessions[uuid] == nil {
		p.uuidToSessions[uuid] = make(map[string]struct{})
	}
	p.uuidToSessions[uuid][sessionID] = struct{}{}
}

func (p *Pool) unbindLocked(sessionID string) {
	uuid, ok := p.sessionToUUID[sessionID]
	if !ok {
		return
	}
	delete(p.sessionToUUID, sessionID)
	if set := p.uuidToSessions[uuid]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(p.uuidToSessions, uuid)
		}
	}
}

// ---------------------------------------------------------------------------
// 4.5.2 Add (double-checked locking)
// ---------------------------------------------------------------------------

// AddAccount resolves (or creates) the account backing cookie, fetching
// organization identity over the network without holding the pool lock.
func (p *Pool) AddAccount(ctx context.Context, cookie string, oauthToken *OAuthToken, seedUUID string) (*Account, error) {
	if acc, ok := p.fastCheckCookie(cookie); ok {
		return acc, nil
	}

	var info *IdentityInfo
	if cookie != "" && p.identity != nil {
		var err error
		info, err = p.identity.FetchIdentity(ctx, cookie)
		if err != nil {
			return nil, err
		}
	}

	acc, isNew := p.commitAccount(cookie, oauthToken, seedUUID, info)
	if isNew && acc.AuthType == AuthCookieOnly {
		go p.tryEnrollOAuth(acc.OrganizationUUID)
	}
	return acc, nil
}

func (p *Pool) fastCheckCookie(cookie string) (*Account, bool) {
	if cookie == "" {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	uuid, ok := p.cookieToUUID[cookie]
	if !ok {
		return nil, false
	}
	return p.accounts[uuid].clone(), true
}

// commitAccount re-checks the cookie index under lock, creates or updates the
// account, and persists before releasing the lock so no interleaved mutation
// can be written out of order.
func (p *Pool) commitAccount(cookie string, oauthToken *OAuthToken, seedUUID string, info *IdentityInfo) (*Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cookie != "" {
		if uuid, ok := p.cookieToUUID[cookie]; ok {
			return p.accounts[uuid].clone(), false
		}
	}

	uuid := seedUUID
	var caps []string
	if info != nil {
		if info.OrganizationUUID != "" {
			uuid = info.OrganizationUUID
		}
		caps = info.Capabilities
	}
	if uuid == "" {
		uuid = newUUID()
	}

	if existing, ok := p.accounts[uuid]; ok {
		if cookie != "" && existing.CookieValue != cookie {
			if existing.CookieValue != "" {
				delete(p.cookieToUUID, existing.CookieValue)
			}
			existing.CookieValue = cookie
			p.cookieToUUID[cookie] = uuid
		}
		return existing.clone(), false
	}

	authType := authTypeFor(cookie, oauthToken)
	acc := &Account{
		OrganizationUUID: uuid,
		AuthType:         authType,
		CookieValue:      cookie,
		OAuthToken:       oauthToken,
		Capabilities:     caps,
		Status:           StatusValid,
		LastUsed:         time.Now(),
	}
	p.accounts[uuid] = acc
	if cookie != "" {
		p.cookieToUUID[cookie] = uuid
	}
	if err := p.persistLocked0(); err != nil {
		p.log.Warn("persist after add failed", zap.Error(err))
	}
	return acc.clone(), true
}

func authTypeFor(cookie string, oauthToken *OAuthToken) AuthType {
	switch {
	case cookie != "" && oauthToken != nil:
		return AuthBoth
	case oauthToken != nil:
		return AuthOAuthOnly
	default:
		return AuthCookieOnly
	}
}

// tryEnrollOAuth is the best-effort background enrollment spawned after a
// cookie-only account is added; failure leaves the account cookie_only.
func (p *Pool) tryEnrollOAuth(uuid string) {
	p.log.Debug("oauth enrollment not attempted: no enrollment flow configured", zap.String("uuid", uuid))
}

// ---------------------------------------------------------------------------
// 4.5.3 Removal
// ---------------------------------------------------------------------------

// RemoveAccount purges uuid from all indices and drops its bound sessions.
func (p *Pool) RemoveAccount(uuid string) error {
	p.mu.Lock()
	p.removeLocked(uuid)
	err := p.persistLocked0()
	p.mu.Unlock()
	return err
}

// BatchRemoveAccounts removes each uuid, persisting once at the end, and
// reports per-uuid success.
func (p *Pool) BatchRemoveAccounts(uuids []string) map[string]error {
	results := make(map[string]error, len(uuids))
	p.mu.Lock()
	for _, uuid := range uuids {
		if _, ok := p.accounts[uuid]; !ok {
			results[uuid] = cwerrors.New(cwerrors.KindNoAccountsAvail, "account not found: "+uuid)
			continue
		}
		p.removeLocked(uuid)
		results[uuid] = nil
	}
	err := p.persistLocked0()
	p.mu.Unlock()
	if err != nil {
		p.log.Warn("persist after batch remove failed", zap.Error(err))
	}
	return results
}

func (p *Pool) removeLocked(uuid string) {
	acc, ok := p.accounts[uuid]
	if !ok {
		return
	}
	if acc.CookieValue != "" {
		delete(p.cookieToUUID, acc.CookieValue)
	}
	for sid := range p.uuidToSessions[uuid] {
		delete(p.sessionToUUID, sid)
	}
	delete(p.uuidToSessions, uuid)
	delete(p.accounts, uuid)
}

// ---------------------------------------------------------------------------
// 4.5.4 Background loop
// ---------------------------------------------------------------------------

// Start launches the background loop, ticking every interval until Stop is
// called or ctx is cancelled. Safe to call at most once.
func (p *Pool) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Pool) tick(ctx context.Context) {
	now := time.Now()

	var toRefresh []*Account
	var notifications []string
	p.mu.Lock()
	for _, acc := range p.accounts {
		if acc.Status == StatusRateLimited && acc.ResetsAt != nil && !acc.ResetsAt.After(now) {
			acc.Status = StatusValid
			acc.ResetsAt = nil
			notifications = append(notifications, "account "+acc.OrganizationUUID+" recovered from rate limit")
		}
		if acc.OAuthToken != nil && acc.OAuthToken.ExpiresWithin(now, 300*time.Second) {
			toRefresh = append(toRefresh, acc.clone())
		}
	}
	if err := p.persistLocked0(); err != nil {
		p.log.Warn("persist during background tick failed", zap.Error(err))
	}
	p.mu.Unlock()

	for _, msg := range notifications {
		p.notifier.Notify(msg)
	}
	for _, acc := range toRefresh {
		go p.refreshToken(ctx, acc.OrganizationUUID)
	}
}

func (p *Pool) refreshToken(ctx context.Context, uuid string) {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	p.mu.Lock()
	acc, ok := p.accounts[uuid]
	var refreshToken string
	if ok && acc.OAuthToken != nil {
		refreshToken = acc.OAuthToken.RefreshToken
	}
	p.mu.Unlock()
	if !ok || refreshToken == "" || p.oauth == nil {
		return
	}

	newToken, err := p.oauth.Refresh(rctx, refreshToken)

	p.mu.Lock()
	acc, ok = p.accounts[uuid]
	if !ok {
		p.mu.Unlock()
		return
	}
	notify := false
	if err != nil {
		p.log.Warn("oauth refresh failed", zap.String("uuid", uuid), zap.Error(err))
		if acc.AuthType == AuthBoth {
			acc.AuthType = AuthCookieOnly
			acc.OAuthToken = nil
		} else {
			acc.Status = StatusInvalid
		}
		notify = true
	} else {
		acc.OAuthToken = newToken
	}
	if err := p.persistLocked0(); err != nil {
		p.log.Warn("persist after refresh failed", zap.Error(err))
	}
	p.mu.Unlock()

	if notify {
		p.notifier.Notify("account " + uuid + " oauth refresh failed")
	}
}

// ---------------------------------------------------------------------------
// Snapshot / status
// ---------------------------------------------------------------------------

// Status returns a point-in-time copy of every account, for the operator dashboard.
func (p *Pool) Status() []*Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Account, 0, len(p.accounts))
	for _, acc := range p.accounts {
		cp := acc.clone()
		cp.sessionCount = p.sessionCountLocked(acc.OrganizationUUID)
		out = append(out, cp)
	}
	return out
}
