package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPresence(t *testing.T, s *Store, userID, canvasID, connectionID string) {
	t.Helper()
	err := s.UpsertPresence(&Presence{
		UserID:       userID,
		CanvasID:     canvasID,
		Color:        "#ff0000",
		ConnectionID: connectionID,
		IsActive:     true,
	})
	require.NoError(t, err)
}

func TestUpsertPresence(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)

	seedPresence(t, s, "alice", c.ID, "conn-1")

	p, err := s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "conn-1", p.ConnectionID)
	assert.True(t, p.IsActive)

	// A second upsert for the same (user, canvas) replaces, never duplicates.
	seedPresence(t, s, "alice", c.ID, "conn-2")
	p, err = s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "conn-2", p.ConnectionID)
}

func touch(userID, canvasID, connectionID string, x, y float64) *Presence {
	return &Presence{
		UserID: userID, CanvasID: canvasID,
		CursorX: x, CursorY: y,
		Color: "#ff0000", ConnectionID: connectionID,
	}
}

func TestTouchPresenceUpdatesCursor(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")

	require.NoError(t, s.TouchPresence(touch("alice", c.ID, "conn-1", 33, 44)))

	p, err := s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 33.0, p.CursorX)
	assert.Equal(t, 44.0, p.CursorY)
}

func TestTouchPresenceRecreatesSweptRow(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")

	// The TTL sweep removed the row while the user stayed connected.
	_, err := s.CleanupStalePresence(time.Now().Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.TouchPresence(touch("alice", c.ID, "conn-1", 5, 6)))

	users, err := s.GetActivePresence(c.ID, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserID)
	assert.Equal(t, 5.0, users[0].CursorX)
}

func TestTouchPresenceCarriesViewport(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")

	vx, vy, zoom := 100.0, 200.0, 1.5
	p := touch("alice", c.ID, "conn-1", 1, 2)
	p.ViewportX, p.ViewportY, p.ViewportZoom = &vx, &vy, &zoom
	require.NoError(t, s.TouchPresence(p))

	got, err := s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ViewportX)
	assert.Equal(t, 100.0, *got.ViewportX)
	require.NotNil(t, got.ViewportZoom)
	assert.Equal(t, 1.5, *got.ViewportZoom)

	// A touch without viewport fields keeps the stored ones.
	require.NoError(t, s.TouchPresence(touch("alice", c.ID, "conn-1", 3, 4)))
	got, err = s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ViewportX)
	assert.Equal(t, 100.0, *got.ViewportX)
}

func TestTouchPresencePreservesSelection(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")
	require.NoError(t, s.UpdatePresenceSelection("alice", c.ID, []string{"shape-1"}, true))

	require.NoError(t, s.TouchPresence(touch("alice", c.ID, "conn-1", 9, 9)))

	p, err := s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shape-1"}, p.SelectedObjectIDs)
}

func TestUpdatePresenceSelectionPreservesCursor(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")
	require.NoError(t, s.TouchPresence(touch("alice", c.ID, "conn-1", 33, 44)))

	require.NoError(t, s.UpdatePresenceSelection("alice", c.ID, []string{"shape-1", "shape-2"}, true))

	p, err := s.GetPresence("alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shape-1", "shape-2"}, p.SelectedObjectIDs)
	assert.Equal(t, 33.0, p.CursorX)
	assert.Equal(t, 44.0, p.CursorY)
}

func TestGetActivePresenceFiltersByHeartbeat(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	c := seedCanvas(t, s, "alice", true)
	seedPresence(t, s, "alice", c.ID, "conn-1")
	seedPresence(t, s, "bob", c.ID, "conn-2")

	users, err := s.GetActivePresence(c.ID, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// A cutoff in the future excludes everyone.
	users, err = s.GetActivePresence(c.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRemovePresenceByConnection(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")

	require.NoError(t, s.RemovePresenceByConnection("conn-1"))

	users, err := s.GetActivePresence(c.ID, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCleanupStalePresence(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	seedPresence(t, s, "alice", c.ID, "conn-1")

	// A cutoff in the past removes nothing.
	canvasIDs, err := s.CleanupStalePresence(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, canvasIDs)

	// A cutoff in the future sweeps the row and reports its canvas.
	canvasIDs, err = s.CleanupStalePresence(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, canvasIDs)

	users, err := s.GetActivePresence(c.ID, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, users)
}
