package transport

import (
	"crypto/tls"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Session cache sizing. One entry per recently dialed server is
// plenty for a game client, and servers never dial enough peers to
// matter.
const (
	DefaultSessionCacheSize = 128
	DefaultSessionTTL       = 24 * time.Hour
)

type sessionEntry struct {
	state   *tls.ClientSessionState
	expires time.Time
}

// SessionCache stores TLS session tickets keyed by peer fingerprint so
// reconnects resume with a single round trip and can attach 0-RTT
// data. It implements tls.ClientSessionCache with LRU eviction and a
// TTL, after which a ticket is treated as stale and a full handshake
// is forced.
//
// Safe for concurrent use.
type SessionCache struct {
	entries *lru.Cache[string, sessionEntry]
	ttl     time.Duration
	clock   clock.Clock
}

// NewSessionCache returns a cache holding up to size tickets for at
// most ttl each. Non-positive arguments select the defaults.
func NewSessionCache(size int, ttl time.Duration) *SessionCache {
	return newSessionCache(size, ttl, clock.New())
}

func newSessionCache(size int, ttl time.Duration, clk clock.Clock) *SessionCache {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	entries, _ := lru.New[string, sessionEntry](size)
	return &SessionCache{entries: entries, ttl: ttl, clock: clk}
}

// Get implements tls.ClientSessionCache.
func (c *SessionCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	e, ok := c.entries.Get(sessionKey)
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expires) {
		c.entries.Remove(sessionKey)
		return nil, false
	}
	return e.state, true
}

// Put implements tls.ClientSessionCache. A nil state evicts the key,
// which is how crypto/tls invalidates a rejected ticket.
func (c *SessionCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	if cs == nil {
		c.entries.Remove(sessionKey)
		return
	}
	c.entries.Add(sessionKey, sessionEntry{
		state:   cs,
		expires: c.clock.Now().Add(c.ttl),
	})
}

// Len reports the number of cached tickets.
func (c *SessionCache) Len() int { return c.entries.Len() }

// Has reports whether an unexpired ticket exists for sessionKey
// without refreshing its LRU position.
func (c *SessionCache) Has(sessionKey string) bool {
	e, ok := c.entries.Peek(sessionKey)
	return ok && !c.clock.Now().After(e.expires)
}

// Forget evicts any ticket stored under sessionKey.
func (c *SessionCache) Forget(sessionKey string) { c.entries.Remove(sessionKey) }

var _ tls.ClientSessionCache = (*SessionCache)(nil)
