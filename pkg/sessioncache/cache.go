// Package sessioncache holds the client's current session. It replaces any
// process-wide "current user" state: callers construct a Cache and pass it to
// the guard and the API client explicitly.
package sessioncache

import (
	"sync"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

// Identity is the client-side view of the logged-in account.
type Identity struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// Session is the token pair held by the client.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Entry is what the cache stores.
type Entry struct {
	Identity
	Session
}

// Cache is safe for concurrent use. The zero value is an empty cache.
type Cache struct {
	mu      sync.RWMutex
	entry   Entry
	present bool
	version uint64
}

func New() *Cache { return &Cache{} }

// Set replaces the cached pair.
func (c *Cache) Set(s Session, id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry{Identity: id, Session: s}
	c.present = true
	c.version++
}

// Get returns the cached pair, or false when nothing is cached.
func (c *Cache) Get() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, c.present
}

// Clear forgets the cached pair. The next Get reports empty.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry{}
	c.present = false
	c.version++
}

// Version increases on every Set and Clear.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// ClearIf clears the cache only if it still holds accessToken. It reports
// whether it cleared anything.
func (c *Cache) ClearIf(accessToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present || c.entry.AccessToken != accessToken {
		return false
	}
	c.entry = Entry{}
	c.present = false
	c.version++
	return true
}

// SetIf replaces the cached pair only if the cache still holds prevAccess, so a
// refresh that finishes after a logout cannot bring the session back. It also
// reports true when the cache already holds s, which happens when another
// caller stored the same rotation first.
func (c *Cache) SetIf(prevAccess string, s Session, id Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return false
	}
	if c.entry.AccessToken == s.AccessToken {
		return true
	}
	if c.entry.AccessToken != prevAccess {
		return false
	}
	c.entry = Entry{Identity: id, Session: s}
	c.version++
	return true
}
