// Package cache keeps the till's product and customer lists available when
// the remote store is not: persisted snapshots with a TTL plus an in-memory
// view refreshed from the remote store in the background.
package cache

import (
	"fmt"
	"time"

	"posbackend/internal/localstore"
)

// Snapshot is one persisted list with its save timestamp (unix milliseconds).
type Snapshot[T any] struct {
	store   *localstore.Store
	dataKey string
	tsKey   string
	ttl     time.Duration
	idOf    func(T) string
	now     func() time.Time
}

func NewSnapshot[T any](store *localstore.Store, dataKey, tsKey string, ttl time.Duration, idOf func(T) string) *Snapshot[T] {
	return &Snapshot[T]{
		store:   store,
		dataKey: dataKey,
		tsKey:   tsKey,
		ttl:     ttl,
		idOf:    idOf,
		now:     time.Now,
	}
}

// Save replaces the list and stamps it with the current time.
func (s *Snapshot[T]) Save(items []T) error {
	if items == nil {
		items = []T{}
	}
	return s.store.PutAll(map[string]any{
		s.dataKey: items,
		s.tsKey:   s.now().UnixMilli(),
	})
}

// Load returns the list while it is younger than the TTL. An expired or
// half-written snapshot is removed and reported as a miss.
func (s *Snapshot[T]) Load() ([]T, bool, error) {
	live, err := s.live()
	if err != nil || !live {
		return nil, false, err
	}

	var items []T
	found, err := s.store.Get(s.dataKey, &items)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, s.Clear()
	}
	return items, true, nil
}

// Patch replaces the entry with the same id, or appends it. The timestamp is
// left alone so a patch never extends the snapshot's life. Without a live
// snapshot there is nothing to patch.
func (s *Snapshot[T]) Patch(item T) error {
	live, err := s.live()
	if err != nil || !live {
		return err
	}

	id := s.idOf(item)
	var items []T
	return s.store.Modify(s.dataKey, &items, func(found bool) (bool, error) {
		if !found {
			return false, nil
		}
		for i := range items {
			if s.idOf(items[i]) == id {
				items[i] = item
				return true, nil
			}
		}
		items = append(items, item)
		return true, nil
	})
}

func (s *Snapshot[T]) Clear() error {
	return s.store.Delete(s.dataKey, s.tsKey)
}

func (s *Snapshot[T]) live() (bool, error) {
	var savedAt int64
	found, err := s.store.Get(s.tsKey, &savedAt)
	if err != nil {
		return false, fmt.Errorf("read snapshot timestamp: %w", err)
	}
	if !found {
		return false, nil
	}

	age := s.now().Sub(time.UnixMilli(savedAt))
	if age > s.ttl {
		return false, s.Clear()
	}
	return true, nil
}
