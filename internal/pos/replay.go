package pos

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"posbackend/internal/models"
	"posbackend/internal/store"
)

type ReplayReport struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Conflicts  int `json:"conflicts"`
	Remaining  int `json:"remaining"`
}

// ReplayPending submits queued offline purchases through the remote checkout.
// Applied and already-applied entries leave the queue. Entries the remote
// store rejects are parked as conflicts. A remote failure stops the pass so
// the rest keep their order for the next attempt.
func (s *Service) ReplayPending(ctx context.Context) (ReplayReport, error) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	var report ReplayReport
	if err := s.requireOnline(ctx); err != nil {
		return report, err
	}

	pending, err := s.queue.List()
	if err != nil {
		return report, err
	}

	var passErr error
	for _, entry := range pending {
		if entry.Status == models.PendingConflict {
			continue
		}

		_, err := s.remote.Checkout(ctx, entry.Purchase)
		switch {
		case err == nil:
			report.Applied++
			s.observer.ObserveReplay("applied")
			err = s.queue.Remove(entry.ReplayKey)
		case errors.Is(err, store.ErrAlreadyApplied):
			report.Duplicates++
			s.observer.ObserveReplay("duplicate")
			err = s.queue.Remove(entry.ReplayKey)
		case isRejection(err):
			report.Conflicts++
			s.observer.ObserveReplay("conflict")
			reason := err.Error()
			zap.L().Warn("offline purchase conflicts with remote state",
				zap.String("replayKey", entry.ReplayKey),
				zap.String("reason", reason),
			)
			err = s.queue.Update(entry.ReplayKey, func(p *models.PendingPurchase) {
				p.Attempts++
				p.Status = models.PendingConflict
				p.LastError = reason
			})
		default:
			s.observer.ObserveReplay("error")
			reason := err.Error()
			passErr = remoteError("replay", err)
			if uerr := s.queue.Update(entry.ReplayKey, func(p *models.PendingPurchase) {
				p.Attempts++
				p.LastError = reason
			}); uerr != nil {
				zap.L().Warn("record replay attempt", zap.Error(uerr))
			}
			err = nil
		}
		if err != nil {
			passErr = fmt.Errorf("update offline queue: %w", err)
		}
		if passErr != nil {
			break
		}
	}

	if report.Applied > 0 {
		if _, _, err := s.cache.Refresh(ctx); err != nil {
			zap.L().Warn("refresh after replay failed", zap.Error(err))
		}
	}

	remaining, err := s.queue.Len()
	if err == nil {
		report.Remaining = remaining
		s.observer.SetQueueDepth(remaining)
	}

	if report.Applied+report.Duplicates+report.Conflicts > 0 || passErr != nil {
		zap.L().Info("offline replay finished",
			zap.Int("applied", report.Applied),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("conflicts", report.Conflicts),
			zap.Int("remaining", report.Remaining),
			zap.Error(passErr),
		)
	}
	return report, passErr
}

// Requeue puts a conflicting entry back in line for the next replay.
func (s *Service) Requeue(replayKey string) error {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	return s.updatePending(replayKey, func(p *models.PendingPurchase) {
		p.Status = models.PendingQueued
	})
}

// Discard drops a queued entry without replaying it.
func (s *Service) Discard(replayKey string) error {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	if err := s.findPending(replayKey); err != nil {
		return err
	}
	if err := s.queue.Remove(replayKey); err != nil {
		return err
	}
	s.updateQueueDepth()
	return nil
}

func (s *Service) updatePending(replayKey string, fn func(*models.PendingPurchase)) error {
	if err := s.findPending(replayKey); err != nil {
		return err
	}
	return s.queue.Update(replayKey, fn)
}

func (s *Service) findPending(replayKey string) error {
	pending, err := s.queue.List()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if p.ReplayKey == replayKey {
			return nil
		}
	}
	return store.NotFoundError{Kind: "offline purchase", Key: replayKey}
}
