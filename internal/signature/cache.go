// Package signature manages thinking-block signatures: an in-memory TTL+LRU
// cache with a pluggable persistent backend, a project-scoped persistent
// registry, and the process-global last-seen slot.
package signature

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// MinLength is the shortest signature worth storing. Upstreams emit
	// opaque tokens well past this; anything shorter is a truncation artifact.
	MinLength = 50

	// DefaultTTL bounds how long a memory entry stays restorable.
	DefaultTTL = time.Hour

	// DefaultMaxEntriesPerSession caps each session's LRU bucket.
	DefaultMaxEntriesPerSession = 100
)

// Key identifies one cached signature.
type Key struct {
	SessionID string
	Family    string
	TextHash  string
}

func (k Key) composite() string { return k.Family + ":" + k.TextHash }

// Entry is the stored value for a key.
type Entry struct {
	Signature string `json:"signature"`
	Family    string `json:"family"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"sessionId"`
}

// Storage is the persistent backend behind the memory cache.
type Storage interface {
	Get(sessionID, compositeKey string) (*Entry, error)
	Set(sessionID, compositeKey string, entry Entry) error
	Delete(sessionID, compositeKey string) error
	ClearSession(sessionID string) error
	SessionEntryCount(sessionID string) (int, error)
	CleanupExpired(ttl time.Duration) (int, error)
	Close() error
}

// HashText returns the stable content hash used to address thinking text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type cacheItem struct {
	key   Key
	entry Entry
	elem  *list.Element
}

type sessionBucket struct {
	items map[string]*cacheItem // composite key -> item
	order *list.List            // front = most recent
}

// Cache is the in-memory signature cache. All methods are safe for
// concurrent use.
type Cache struct {
	mu         sync.Mutex
	sessions   map[string]*sessionBucket
	maxPerSess int
	ttl        time.Duration
	storage    Storage
	now        func() time.Time
}

// NewCache builds a cache with the given per-session capacity and TTL.
// storage may be nil for memory-only operation.
func NewCache(maxPerSession int, ttl time.Duration, storage Storage) *Cache {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxEntriesPerSession
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		sessions:   make(map[string]*sessionBucket),
		maxPerSess: maxPerSession,
		ttl:        ttl,
		storage:    storage,
		now:        time.Now,
	}
}

// Store inserts a signature under key. Signatures shorter than MinLength are
// ignored. At capacity the least recently used entry of the session is
// evicted. The persistent backend, when configured, is updated as well.
func (c *Cache) Store(key Key, sig string) {
	if len(sig) < MinLength {
		return
	}

	entry := Entry{Signature: sig, Family: key.Family, Timestamp: c.nowUnixMilli(), SessionID: key.SessionID}

	c.mu.Lock()
	bucket, ok := c.sessions[key.SessionID]
	if !ok {
		bucket = &sessionBucket{items: make(map[string]*cacheItem), order: list.New()}
		c.sessions[key.SessionID] = bucket
	}

	ck := key.composite()
	if item, exists := bucket.items[ck]; exists {
		item.entry = entry
		bucket.order.MoveToFront(item.elem)
	} else {
		item := &cacheItem{key: key, entry: entry}
		item.elem = bucket.order.PushFront(item)
		bucket.items[ck] = item
		for len(bucket.items) > c.maxPerSess {
			oldest := bucket.order.Back()
			if oldest == nil {
				break
			}
			evicted := bucket.order.Remove(oldest).(*cacheItem)
			delete(bucket.items, evicted.key.composite())
		}
	}
	c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.Set(key.SessionID, ck, entry); err != nil {
			log.Warnf("signature cache: persist failed: %v", err)
		}
	}
}

// Restore looks the signature up in memory, falling back to the persistent
// backend. Backend hits repopulate the memory bucket. Expired entries are
// dropped at read time.
func (c *Cache) Restore(key Key) (string, bool) {
	ck := key.composite()

	c.mu.Lock()
	if bucket, ok := c.sessions[key.SessionID]; ok {
		if item, exists := bucket.items[ck]; exists {
			if c.expired(item.entry) {
				bucket.order.Remove(item.elem)
				delete(bucket.items, ck)
			} else {
				bucket.order.MoveToFront(item.elem)
				sig := item.entry.Signature
				c.mu.Unlock()
				return sig, true
			}
		}
	}
	c.mu.Unlock()

	if c.storage == nil {
		return "", false
	}
	entry, err := c.storage.Get(key.SessionID, ck)
	if err != nil || entry == nil {
		return "", false
	}
	if c.expired(*entry) {
		_ = c.storage.Delete(key.SessionID, ck)
		return "", false
	}
	c.Store(key, entry.Signature)
	return entry.Signature, true
}

// ClearSession removes a session's bucket from memory and storage.
func (c *Cache) ClearSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.ClearSession(sessionID); err != nil {
			log.Warnf("signature cache: clear session failed: %v", err)
		}
	}
}

// CleanupExpired purges expired memory entries and asks the backend to do
// the same, returning how many were dropped in total.
func (c *Cache) CleanupExpired() int {
	count := 0

	c.mu.Lock()
	for sid, bucket := range c.sessions {
		for ck, item := range bucket.items {
			if c.expired(item.entry) {
				bucket.order.Remove(item.elem)
				delete(bucket.items, ck)
				count++
			}
		}
		if len(bucket.items) == 0 {
			delete(c.sessions, sid)
		}
	}
	c.mu.Unlock()

	if c.storage != nil {
		if n, err := c.storage.CleanupExpired(c.ttl); err == nil {
			count += n
		}
	}
	return count
}

// SessionSize reports the number of memory entries for a session.
func (c *Cache) SessionSize(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.sessions[sessionID]; ok {
		return len(bucket.items)
	}
	return 0
}

// StartSweeper runs CleanupExpired on interval until stop is closed.
func (c *Cache) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.CleanupExpired(); n > 0 {
					log.Debugf("signature cache: swept %d expired entries", n)
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Cache) expired(e Entry) bool {
	return c.now().UnixMilli()-e.Timestamp > c.ttl.Milliseconds()
}

func (c *Cache) nowUnixMilli() int64 { return c.now().UnixMilli() }
