// Package localstore is the on-disk key/value store that keeps the till usable
// without the remote store: snapshots, the session mirror and the offline queue.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	KeyAuth               = "auth_user_data"
	KeyUserData           = "user_data"
	KeyProducts           = "pos_products_cache"
	KeyProductsTimestamp  = "pos_products_cache_timestamp"
	KeyCustomers          = "pos_customers_cache"
	KeyCustomersTimestamp = "pos_customers_cache_timestamp"
	KeyOfflinePurchases   = "offlinePurchases"
)

var bucketName = []byte("pos")

type Store struct {
	db *bolt.DB
}

// Open creates the parent directory and the bucket if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get decodes the value under key into v. The boolean is false when the key is absent.
func (s *Store) Get(key string, v any) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, v)
	})
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return found, nil
}

func (s *Store) Put(key string, v any) error {
	return s.PutAll(map[string]any{key: v})
}

// PutAll writes every entry in one transaction.
func (s *Store) PutAll(entries map[string]any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for key, v := range entries {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			if err := b.Put([]byte(key), raw); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Store) Delete(keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// Modify runs a read-modify-write of key inside a single transaction. v is
// decoded (when present) before fn runs and encoded again after it returns.
// Returning keep=false deletes the key instead.
func (s *Store) Modify(key string, v any, fn func(found bool) (keep bool, err error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(key))
		found := raw != nil
		if found {
			if err := json.Unmarshal(raw, v); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}

		keep, err := fn(found)
		if err != nil {
			return err
		}
		if !keep {
			return b.Delete([]byte(key))
		}

		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		return b.Put([]byte(key), encoded)
	})
}
