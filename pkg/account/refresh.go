package account

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"cwproxy/pkg/cwerrors"
)

type cookieValidity int

const (
	cookieUnknown cookieValidity = iota
	cookieValid
	cookieInvalid
)

// RefreshAccountStatus performs a deep re-validation of one account: cookie
// validation and OAuth refresh run unlocked (they are network calls), the
// rate-limit probe runs unlocked and only when warranted, and the final
// status transition is applied under the pool lock.
func (p *Pool) RefreshAccountStatus(ctx context.Context, uuid string) error {
	p.mu.Lock()
	acc, ok := p.accounts[uuid]
	var snapshot *Account
	if ok {
		snapshot = acc.clone()
	}
	p.mu.Unlock()
	if !ok {
		return cwerrors.New(cwerrors.KindNoAccountsAvail, "account not found: "+uuid)
	}

	validity := cookieUnknown
	if snapshot.HasCookie() && p.identity != nil {
		if err := p.identity.ValidateCookie(ctx, snapshot.CookieValue); err != nil {
			if cwerrors.Is(err, cwerrors.KindAuthenticationErr) {
				validity = cookieInvalid
			}
		} else {
			validity = cookieValid
		}
	}

	if snapshot.HasOAuth() && p.oauth != nil {
		if newToken, err := p.oauth.Refresh(ctx, snapshot.OAuthToken.RefreshToken); err == nil {
			snapshot.OAuthToken = newToken
		}
	}

	var probe *ProbeResult
	if snapshot.Status == StatusRateLimited && validity == cookieValid && p.prober != nil {
		if result, err := p.prober.Probe(ctx, snapshot); err == nil {
			probe = &result
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok = p.accounts[uuid]
	if !ok {
		return nil
	}
	acc.OAuthToken = snapshot.OAuthToken
	applyRefreshTransition(acc, validity, probe)

	if err := p.persistLocked0(); err != nil {
		p.log.Warn("persist after status refresh failed", zap.Error(err))
	}
	return nil
}

// BatchRefreshAccounts fans RefreshAccountStatus out across uuids bounded by a
// semaphore of min(concurrency, 20), returning per-uuid results.
func (p *Pool) BatchRefreshAccounts(ctx context.Context, uuids []string, concurrency int) map[string]error {
	if concurrency <= 0 || concurrency > 20 {
		concurrency = 20
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	results := make(map[string]error, len(uuids))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, uuid := range uuids {
		uuid := uuid
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[uuid] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			err := p.RefreshAccountStatus(ctx, uuid)
			mu.Lock()
			results[uuid] = err
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// applyRefreshTransition maps (current status, cookie validity, probe result)
// to the next status.
func applyRefreshTransition(acc *Account, validity cookieValidity, probe *ProbeResult) {
	switch acc.Status {
	case StatusRateLimited:
		switch {
		case validity == cookieInvalid:
			acc.Status = StatusInvalid
			acc.ResetsAt = nil
		case validity == cookieValid && probe != nil && probe.Status == StatusValid:
			acc.Status = StatusValid
			acc.ResetsAt = nil
		case validity == cookieValid && probe != nil && probe.Status == StatusRateLimited:
			acc.Status = StatusRateLimited
			if probe.ResetsAt != nil {
				acc.ResetsAt = probe.ResetsAt
			}
		default:
			// probe errored or was not attempted: leave status unchanged
		}
	case StatusInvalid:
		if validity == cookieValid {
			acc.Status = StatusValid
			acc.ResetsAt = nil
		}
	case StatusValid:
		if validity == cookieInvalid {
			acc.Status = StatusInvalid
		}
	}
}
