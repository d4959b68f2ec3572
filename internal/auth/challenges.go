package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ChallengeStore issues single-use login nonces keyed by session id. At most
// one live challenge exists per session; issuing again overwrites it.
type ChallengeStore struct {
	mu      sync.Mutex
	entries map[string]challenge
}

type challenge struct {
	nonce    string
	issuedAt time.Time
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{entries: make(map[string]challenge)}
}

// Issue creates a fresh nonce for the session, replacing any prior
// unconsumed one.
func (c *ChallengeStore) Issue(sid string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	c.mu.Lock()
	c.entries[sid] = challenge{nonce: nonce, issuedAt: time.Now()}
	c.mu.Unlock()

	return nonce, nil
}

// Consume removes the session's challenge and reports whether supplied
// matched it. Removal happens regardless of the outcome: a nonce buys exactly
// one verification attempt.
func (c *ChallengeStore) Consume(sid, supplied string) bool {
	c.mu.Lock()
	entry, ok := c.entries[sid]
	delete(c.entries, sid)
	c.mu.Unlock()

	return ok && supplied != "" && entry.nonce == supplied
}

// Sweep drops challenges older than maxAge and returns how many were removed.
func (c *ChallengeStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for sid, entry := range c.entries {
		if entry.issuedAt.Before(cutoff) {
			delete(c.entries, sid)
			removed++
		}
	}
	return removed
}
