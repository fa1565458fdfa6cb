package signature

import (
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Record binds a signature to the project it was minted under. Signatures
// are only admissible on requests targeting the same project.
type Record struct {
	Signature string `json:"signature"`
	ProjectID string `json:"projectId"`
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Account   string `json:"account"`
	CreatedAt int64  `json:"createdAt"`
}

// Store is the persistent project-scoped signature registry, primary key =
// signature string.
type Store struct {
	db *bolt.DB
}

// NewStore wraps a shared bolt handle. The records bucket is created by
// OpenBolt.
func NewStore(db *bolt.DB) *Store {
	return &Store{db: db}
}

// Save upserts a record, stamping CreatedAt when unset.
func (s *Store) Save(rec Record) error {
	if rec.Signature == "" {
		return nil
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRecords).Put([]byte(rec.Signature), raw)
	})
}

// Get returns the record for sig, or nil when unknown.
func (s *Store) Get(sig string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRecords).Get([]byte(sig))
		if raw == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

// IsValidForProject reports whether sig has a record bound to projectID.
func (s *Store) IsValidForProject(sig, projectID string) bool {
	rec, err := s.Get(sig)
	if err != nil || rec == nil {
		return false
	}
	return rec.ProjectID == projectID
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Validator is the read side the request path needs; tests substitute it.
type Validator interface {
	IsValidForProject(sig, projectID string) bool
}

// Saver is the write side the stream transform needs.
type Saver interface {
	Save(rec Record) error
}

// GlobalSlot is the process-wide last-seen signed thinking block. A single
// protected value rather than a package global so tests can substitute it.
type GlobalSlot struct {
	mu        sync.Mutex
	text      string
	signature string
	family    string
	storedAt  time.Time
	ttl       time.Duration
	now       func() time.Time
}

// GlobalTTL is how long the slot stays valid after a store.
const GlobalTTL = 10 * time.Minute

// NewGlobalSlot returns an empty slot with the default TTL.
func NewGlobalSlot() *GlobalSlot {
	return &GlobalSlot{ttl: GlobalTTL, now: time.Now}
}

// Set overwrites the slot.
func (g *GlobalSlot) Set(text, sig, family string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.text, g.signature, g.family = text, sig, family
	g.storedAt = g.now()
}

// Get returns the slot contents when the stored family matches and the entry
// has not expired.
func (g *GlobalSlot) Get(family string) (text, sig string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.signature == "" || g.family != family {
		return "", "", false
	}
	if g.now().Sub(g.storedAt) > g.ttl {
		return "", "", false
	}
	return g.text, g.signature, true
}

// Reset clears the slot.
func (g *GlobalSlot) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.text, g.signature, g.family = "", "", ""
	g.storedAt = time.Time{}
}
