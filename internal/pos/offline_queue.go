package pos

import (
	"time"

	"github.com/google/uuid"

	"posbackend/internal/localstore"
	"posbackend/internal/models"
)

// OfflineQueue persists checkouts taken while the remote store was down.
// Every mutation is a single read-modify-write of the queue key.
type OfflineQueue struct {
	local *localstore.Store
	now   func() time.Time
}

func NewOfflineQueue(local *localstore.Store) *OfflineQueue {
	return &OfflineQueue{local: local, now: time.Now}
}

// Append queues purchase under a fresh replay key and returns the entry.
func (q *OfflineQueue) Append(purchase models.Purchase) (models.PendingPurchase, error) {
	entry := models.PendingPurchase{
		ReplayKey: uuid.NewString(),
		QueuedAt:  q.now(),
		Status:    models.PendingQueued,
	}
	purchase.ReplayKey = entry.ReplayKey
	entry.Purchase = purchase

	var pending []models.PendingPurchase
	err := q.local.Modify(localstore.KeyOfflinePurchases, &pending, func(bool) (bool, error) {
		pending = append(pending, entry)
		return true, nil
	})
	if err != nil {
		return models.PendingPurchase{}, err
	}
	return entry, nil
}

func (q *OfflineQueue) List() ([]models.PendingPurchase, error) {
	var pending []models.PendingPurchase
	if _, err := q.local.Get(localstore.KeyOfflinePurchases, &pending); err != nil {
		return nil, err
	}
	if pending == nil {
		pending = []models.PendingPurchase{}
	}
	return pending, nil
}

// Remove drops the entry with replayKey. The key is deleted once the queue is empty.
func (q *OfflineQueue) Remove(replayKey string) error {
	var pending []models.PendingPurchase
	return q.local.Modify(localstore.KeyOfflinePurchases, &pending, func(found bool) (bool, error) {
		kept := pending[:0]
		for _, p := range pending {
			if p.ReplayKey != replayKey {
				kept = append(kept, p)
			}
		}
		pending = kept
		return len(pending) > 0, nil
	})
}

// Update applies fn to the entry with replayKey, if it is still queued.
func (q *OfflineQueue) Update(replayKey string, fn func(*models.PendingPurchase)) error {
	var pending []models.PendingPurchase
	return q.local.Modify(localstore.KeyOfflinePurchases, &pending, func(found bool) (bool, error) {
		for i := range pending {
			if pending[i].ReplayKey == replayKey {
				fn(&pending[i])
			}
		}
		return len(pending) > 0, nil
	})
}

func (q *OfflineQueue) Len() (int, error) {
	pending, err := q.List()
	return len(pending), err
}
