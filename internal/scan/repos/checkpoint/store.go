// Package checkpoint persists scan progress to a bbolt database so an
// interrupted scan can resume without re-probing chunks that already
// settled. It mirrors the teacher's bucket-per-concern bbolt store layout.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

var (
	bucketChunks = []byte("chunks")
	bucketFound  = []byte("found")
)

// Store implements durable scan checkpointing over bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a bbolt database at path and ensures buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketFound)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init checkpoint buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// ChunkKey fingerprints a chunk for a given scan: the sorted-by-position
// joined candidate names, hashed so arbitrarily long chunks produce a
// bounded bbolt key.
func ChunkKey(scanID string, chunk domain.Chunk) string {
	sum := sha256.Sum256([]byte(strings.Join(chunk.Names(), "\x00")))
	return scanID + ":" + hex.EncodeToString(sum[:])
}

// IsCleared reports whether the chunk identified by key was already fully
// bisected in a prior run of the same scan ID.
func (s *Store) IsCleared(key string) (bool, error) {
	var cleared bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChunks).Get([]byte(key))
		cleared = v != nil
		return nil
	})
	return cleared, err
}

// MarkCleared records that the chunk identified by key completed bisection
// without a fatal error.
func (s *Store) MarkCleared(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).Put([]byte(key), []byte{1})
	})
}

// SaveFound durably records a finding for scanID, keyed by candidate name so
// a resumed scan's writer does not need to re-derive it.
func (s *Store) SaveFound(scanID string, f domain.FoundParameter) error {
	v, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}
	key := []byte(scanID + ":" + string(f.Name))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFound).Put(key, v)
	})
}

// LoadFound returns every finding previously recorded for scanID, used to
// seed a resumed scan's ledger.
func (s *Store) LoadFound(scanID string) ([]domain.FoundParameter, error) {
	var out []domain.FoundParameter
	prefix := []byte(scanID + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFound).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var f domain.FoundParameter
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshal finding %s: %w", k, err)
			}
			out = append(out, f)
		}
		return nil
	})
	return out, err
}
