package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate/canvasd/errors"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func seedShape(t *testing.T, s *Store, canvasID, userID string) *Shape {
	t.Helper()
	sh, err := s.CreateShape(canvasID, userID, &Shape{
		Type:      ShapeRectangle,
		X:         10,
		Y:         20,
		Width:     f64(100),
		Height:    f64(50),
		Fill:      "#ff0000",
		Opacity:   1,
		IsVisible: true,
	})
	require.NoError(t, err)
	return sh
}

func TestCreateShapeAssignsIdentity(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)

	sh := seedShape(t, s, c.ID, "alice")
	assert.NotEmpty(t, sh.ID)
	assert.Equal(t, c.ID, sh.CanvasID)
	assert.Equal(t, "alice", sh.CreatedBy)
	assert.Equal(t, "alice", sh.LastModifiedBy)
	assert.Nil(t, sh.LockedAt)
	assert.Nil(t, sh.LockedBy)
}

func TestNextZIndex(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)

	z, err := s.NextZIndex(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, z)

	seedShape(t, s, c.ID, "alice")

	z, err = s.NextZIndex(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, z)
}

func TestGetShapesOrderedByZIndex(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)

	top, err := s.CreateShape(c.ID, "alice", &Shape{Type: ShapeCircle, Radius: f64(5), ZIndex: 5, Opacity: 1, IsVisible: true})
	require.NoError(t, err)
	bottom, err := s.CreateShape(c.ID, "alice", &Shape{Type: ShapeCircle, Radius: f64(5), ZIndex: 1, Opacity: 1, IsVisible: true})
	require.NoError(t, err)

	shapes, err := s.GetShapes(c.ID)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, bottom.ID, shapes[0].ID)
	assert.Equal(t, top.ID, shapes[1].ID)
}

func TestUpdateShapePartial(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	c := seedCanvas(t, s, "alice", true)
	sh := seedShape(t, s, c.ID, "alice")

	updated, err := s.UpdateShape(sh.ID, "bob", &ShapeUpdates{
		X:    f64(42),
		Fill: str("#00ff00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, updated.X)
	assert.Equal(t, "#00ff00", updated.Fill)
	assert.Equal(t, "bob", updated.LastModifiedBy)

	// Untouched fields survive.
	assert.Equal(t, 20.0, updated.Y)
	require.NotNil(t, updated.Width)
	assert.Equal(t, 100.0, *updated.Width)
}

func TestUpdateShapeNotFound(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")

	_, err := s.UpdateShape("no-such-shape", "alice", &ShapeUpdates{X: f64(1)})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteShapeIsSoft(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	sh := seedShape(t, s, c.ID, "alice")

	require.NoError(t, s.DeleteShape(sh.ID))

	_, err := s.GetShapeByID(sh.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	shapes, err := s.GetShapes(c.ID)
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestBatchUpdateShapes(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	a := seedShape(t, s, c.ID, "alice")
	b := seedShape(t, s, c.ID, "alice")

	shapes, err := s.BatchUpdateShapes([]BatchShapeUpdate{
		{ID: a.ID, Data: &ShapeUpdates{X: f64(1)}},
		{ID: b.ID, Data: &ShapeUpdates{X: f64(2)}},
	}, "alice")
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, 1.0, shapes[0].X)
	assert.Equal(t, 2.0, shapes[1].X)
}

func TestLockShapeRoundTrip(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	sh := seedShape(t, s, c.ID, "alice")

	now := time.Now().UTC()
	locked, err := s.LockShape(sh.ID, "alice", now)
	require.NoError(t, err)
	require.NotNil(t, locked.LockedBy)
	require.NotNil(t, locked.LockedAt)
	assert.Equal(t, "alice", *locked.LockedBy)
	assert.WithinDuration(t, now, *locked.LockedAt, time.Millisecond)

	unlocked, err := s.ClearShapeLock(sh.ID)
	require.NoError(t, err)
	assert.Nil(t, unlocked.LockedBy)
	assert.Nil(t, unlocked.LockedAt)
}

func TestLockedNow(t *testing.T) {
	now := time.Now()
	ttl := 5 * time.Second

	fresh := now.Add(-time.Second)
	stale := now.Add(-10 * time.Second)

	sh := &Shape{LockedAt: &fresh}
	assert.True(t, sh.LockedNow(now, ttl))

	sh.LockedAt = &stale
	assert.False(t, sh.LockedNow(now, ttl))

	sh.LockedAt = nil
	assert.False(t, sh.LockedNow(now, ttl))
}

func TestGetExpiredLocks(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)
	fresh := seedShape(t, s, c.ID, "alice")
	stale := seedShape(t, s, c.ID, "alice")

	now := time.Now().UTC()
	_, err := s.LockShape(fresh.ID, "alice", now)
	require.NoError(t, err)
	_, err = s.LockShape(stale.ID, "alice", now.Add(-10*time.Second))
	require.NoError(t, err)

	expired, err := s.GetExpiredLocks(c.ID, now.Add(-5*time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
}

func TestUnlockShapesByUser(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	c := seedCanvas(t, s, "alice", true)
	mine := seedShape(t, s, c.ID, "alice")
	theirs := seedShape(t, s, c.ID, "bob")

	now := time.Now().UTC()
	_, err := s.LockShape(mine.ID, "alice", now)
	require.NoError(t, err)
	_, err = s.LockShape(theirs.ID, "bob", now)
	require.NoError(t, err)

	released, err := s.UnlockShapesByUser("alice", c.ID)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, mine.ID, released[0].ID)
	assert.Nil(t, released[0].LockedBy)

	// Bob's lock is untouched.
	sh, err := s.GetShapeByID(theirs.ID)
	require.NoError(t, err)
	require.NotNil(t, sh.LockedBy)
	assert.Equal(t, "bob", *sh.LockedBy)
}

func TestGetShapesInViewport(t *testing.T) {
	s := NewTestStore(t)
	seedUser(t, s, "alice")
	c := seedCanvas(t, s, "alice", false)

	inside, err := s.CreateShape(c.ID, "alice", &Shape{
		Type: ShapeRectangle, X: 0, Y: 0, Width: f64(10), Height: f64(10), Opacity: 1, IsVisible: true,
	})
	require.NoError(t, err)
	_, err = s.CreateShape(c.ID, "alice", &Shape{
		Type: ShapeRectangle, X: 5000, Y: 5000, Width: f64(10), Height: f64(10), Opacity: 1, IsVisible: true,
	})
	require.NoError(t, err)

	shapes, err := s.GetShapesInViewport(c.ID, Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}, 0)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, inside.ID, shapes[0].ID)
}
