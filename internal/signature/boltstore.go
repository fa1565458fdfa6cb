package signature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("signature_sessions")
	bucketRecords  = []byte("signature_records")
)

// BoltStorage persists signature cache entries in a single bbolt file, one
// nested bucket per session keyed by composite key.
type BoltStorage struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the signature database at path, creating the
// parent directory if needed.
func OpenBolt(path string) (*BoltStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("signature: create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("signature: open db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists(bucketSessions); errB != nil {
			return errB
		}
		_, errB := tx.CreateBucketIfNotExists(bucketRecords)
		return errB
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("signature: init buckets: %w", err)
	}
	return &BoltStorage{db: db}, nil
}

// DB exposes the underlying handle so the project store can share the file.
func (s *BoltStorage) DB() *bolt.DB { return s.db }

func (s *BoltStorage) Get(sessionID, compositeKey string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		sess := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if sess == nil {
			return nil
		}
		raw := sess.Get([]byte(compositeKey))
		if raw == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	return entry, err
}

func (s *BoltStorage) Set(sessionID, compositeKey string, entry Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sess, err := tx.Bucket(bucketSessions).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return sess.Put([]byte(compositeKey), raw)
	})
}

func (s *BoltStorage) Delete(sessionID, compositeKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sess := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if sess == nil {
			return nil
		}
		return sess.Delete([]byte(compositeKey))
	})
}

func (s *BoltStorage) ClearSession(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSessions)
		if root.Bucket([]byte(sessionID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(sessionID))
	})
}

// SessionEntries returns every entry of a session, keyed by composite key.
func (s *BoltStorage) SessionEntries(sessionID string) (map[string]Entry, error) {
	out := make(map[string]Entry)
	err := s.db.View(func(tx *bolt.Tx) error {
		sess := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if sess == nil {
			return nil
		}
		return sess.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out[string(k)] = e
			return nil
		})
	})
	return out, err
}

func (s *BoltStorage) SessionEntryCount(sessionID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		sess := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if sess == nil {
			return nil
		}
		count = sess.Stats().KeyN
		return nil
	})
	return count, err
}

func (s *BoltStorage) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().UnixMilli() - ttl.Milliseconds()
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSessions)
		return root.ForEachBucket(func(name []byte) error {
			sess := root.Bucket(name)
			var stale [][]byte
			errEach := sess.ForEach(func(k, v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil || e.Timestamp < cutoff {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if errEach != nil {
				return errEach
			}
			for _, k := range stale {
				if err := sess.Delete(k); err != nil {
					return err
				}
				count++
			}
			return nil
		})
	})
	return count, err
}

func (s *BoltStorage) Close() error { return s.db.Close() }
