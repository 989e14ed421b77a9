package models

import "time"

const (
	PendingQueued   = "pending"
	PendingConflict = "conflict"
)

// PendingPurchase is a checkout taken while offline, waiting for replay.
type PendingPurchase struct {
	ReplayKey string    `json:"replayKey"`
	Purchase  Purchase  `json:"purchase"`
	QueuedAt  time.Time `json:"queuedAt"`
	Attempts  int       `json:"attempts"`
	Status    string    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
}
