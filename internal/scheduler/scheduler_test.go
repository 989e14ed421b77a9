package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapSkipsWhileOffline(t *testing.T) {
	ran := false
	wrap(Job{
		Name:   "replay",
		Online: func(context.Context) bool { return false },
		Run: func(context.Context) error {
			ran = true
			return nil
		},
	})()
	assert.False(t, ran)
}

func TestWrapRecoversFromPanicsAndErrors(t *testing.T) {
	assert.NotPanics(t, wrap(Job{
		Name: "boom",
		Run:  func(context.Context) error { panic("boom") },
	}))
	assert.NotPanics(t, wrap(Job{
		Name: "fails",
		Run:  func(context.Context) error { return errors.New("nope") },
	}))
}

func TestWrapRunsWithDeadline(t *testing.T) {
	var hasDeadline bool
	wrap(Job{
		Name:   "refresh",
		Online: func(context.Context) bool { return true },
		Run: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		},
	})()
	assert.True(t, hasDeadline)
}

func TestAddValidatesSpec(t *testing.T) {
	s := New()
	assert.NoError(t, s.Add(Job{Name: "disabled"}))
	assert.NoError(t, s.Add(Job{Name: "every", Spec: "@every 5m", Run: func(context.Context) error { return nil }}))
	assert.NoError(t, s.Add(Job{Name: "seconds", Spec: "*/30 * * * * *", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "bad", Spec: "not a spec", Run: func(context.Context) error { return nil }}))
	assert.Len(t, s.cron.Entries(), 2)
}
