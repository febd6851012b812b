package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("t1", "sess1", "m1")

	entry, ok := r.Lookup("t1")
	assert.True(t, ok)
	assert.Equal(t, "sess1", entry.SessionID)
	assert.Equal(t, "m1", entry.MessageID)

	_, ok = r.Lookup("t1")
	assert.False(t, ok, "lookup consumes the entry")
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry(time.Minute)
	_, ok := r.Lookup("absent")
	assert.False(t, ok)
}

func TestRegistryEvictsExpired(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.Register("t1", "sess1", "")
	time.Sleep(20 * time.Millisecond)

	n := r.Evict()
	assert.Equal(t, 1, n)
	_, ok := r.Lookup("t1")
	assert.False(t, ok)
}
