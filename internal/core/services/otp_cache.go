package services

import (
	"sync"
	"time"
)

// OTPCache holds short-lived one-time codes keyed by credential group. The
// batch dispatch path only reads it; codes arrive through the HTTP API
// before a batch is submitted.
type OTPCache struct {
	mu      sync.RWMutex
	entries map[string]otpEntry
	ttl     time.Duration
	now     func() time.Time
}

type otpEntry struct {
	code      string
	expiresAt time.Time
}

func NewOTPCache(ttl time.Duration) *OTPCache {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &OTPCache{
		entries: make(map[string]otpEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *OTPCache) Put(group, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[group] = otpEntry{code: code, expiresAt: c.now().Add(c.ttl)}
}

// Get returns the cached code for a credential group, if present and not
// expired.
func (c *OTPCache) Get(group string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[group]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, group)
		c.mu.Unlock()
		return "", false
	}
	return entry.code, true
}

func (c *OTPCache) Delete(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, group)
}
