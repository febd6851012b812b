package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cwproxy/pkg/account"
)

type fixedStatus struct{ rows []*account.Account }

func (f fixedStatus) Status() []*account.Account { return f.rows }

func TestViewRendersAccountRows(t *testing.T) {
	m := model{
		width: 100,
		rows: []*account.Account{
			{OrganizationUUID: "org-12345678", AuthType: account.AuthBoth, Status: account.StatusValid},
		},
	}
	out := m.View()
	assert.Contains(t, out, "org-1234")
	assert.Contains(t, out, "valid")
}

func TestViewRendersResetsAt(t *testing.T) {
	resets := time.Now()
	m := model{
		width: 100,
		rows: []*account.Account{
			{OrganizationUUID: "org-1", Status: account.StatusRateLimited, ResetsAt: &resets},
		},
	}
	out := m.View()
	assert.Contains(t, out, "rate_limited")
}
