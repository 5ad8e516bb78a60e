package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tessellate/canvasd/config"
	"github.com/tessellate/canvasd/store"
)

func TestLockConflict(t *testing.T) {
	h := &Hub{cfg: config.HubConfig{LockTTL: 5 * time.Second}}
	now := time.Now()
	alice := "alice"
	bob := "bob"
	fresh := now.Add(-time.Second)
	expired := now.Add(-10 * time.Second)

	tests := []struct {
		name     string
		lockedBy *string
		lockedAt *time.Time
		userID   string
		want     bool
	}{
		{name: "unlocked", userID: alice, want: false},
		{name: "held by self", lockedBy: &alice, lockedAt: &fresh, userID: alice, want: false},
		{name: "held by other, fresh", lockedBy: &bob, lockedAt: &fresh, userID: alice, want: true},
		{name: "held by other, expired", lockedBy: &bob, lockedAt: &expired, userID: alice, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := &store.Shape{LockedBy: tt.lockedBy, LockedAt: tt.lockedAt}
			assert.Equal(t, tt.want, h.lockConflict(sh, tt.userID, now))
		})
	}
}

func TestActivityTracking(t *testing.T) {
	h := &Hub{
		cfg:                config.HubConfig{LockTTL: 5 * time.Second},
		lastCursorActivity: make(map[string]time.Time),
	}

	// A user who never moved reports the zero time, which always ages out.
	assert.True(t, h.lastActivity("alice").IsZero())

	h.markActivity("alice")
	assert.False(t, h.lastActivity("alice").IsZero())

	h.clearActivity("alice")
	assert.True(t, h.lastActivity("alice").IsZero())
}
