package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate/canvasd/errors"
)

// Store handles persistence of users, canvases, shapes and presence.
type Store struct {
	db *sql.DB
}

// New creates a store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Timestamps are stored as fixed-width RFC3339 UTC strings so SQL string
// comparison matches chronological order (RFC3339Nano trims trailing zeros
// and does not compare lexicographically).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// GetOrCreateUser returns the user with u.ID, creating it from u on first
// appearance. AvatarColor is only written on create; an existing user keeps
// the color assigned at first sight.
func (s *Store) GetOrCreateUser(u *User) (*User, error) {
	existing, err := s.GetUserByID(u.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO users (id, username, email, display_name, avatar_color, is_online, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, u.ID, u.Username, u.Email, u.DisplayName, u.AvatarColor, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	return s.GetUserByID(u.ID)
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(id string) (*User, error) {
	var u User
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, username, email, display_name, avatar_color, is_online, created_at, updated_at
		FROM users WHERE id = ? AND is_deleted = 0
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarColor, &u.IsOnline, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// SetUserColor assigns the avatar color for users created before color
// assignment existed.
func (s *Store) SetUserColor(id, color string) error {
	_, err := s.db.Exec(`
		UPDATE users SET avatar_color = ?, updated_at = ? WHERE id = ?
	`, color, fmtTime(time.Now()), id)
	if err != nil {
		return errors.Wrap(err, "set user color")
	}
	return nil
}

// SetUserOnline flips the user's online flag.
func (s *Store) SetUserOnline(id string, online bool) error {
	_, err := s.db.Exec(`
		UPDATE users SET is_online = ?, updated_at = ? WHERE id = ?
	`, online, fmtTime(time.Now()), id)
	if err != nil {
		return errors.Wrap(err, "set user online")
	}
	return nil
}

// CheckAccess is the single authority for session admission: a user may
// join a canvas that is public or that they own.
func (s *Store) CheckAccess(canvasID, userID string) (bool, error) {
	var isPublic bool
	var ownerID string
	err := s.db.QueryRow(`
		SELECT is_public, owner_id FROM canvases WHERE id = ? AND is_deleted = 0
	`, canvasID).Scan(&isPublic, &ownerID)
	if err == sql.ErrNoRows {
		return false, errors.NewNotFoundError("canvas %s", canvasID)
	}
	if err != nil {
		return false, errors.Wrap(err, "check access")
	}
	return isPublic || ownerID == userID, nil
}

// CreateCanvas persists a new canvas. An empty ID is assigned a UUID and
// empty defaults are filled in.
func (s *Store) CreateCanvas(c *Canvas) (*Canvas, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.BackgroundColor == "" {
		c.BackgroundColor = "#1a1a1a"
	}
	if c.ViewportZoom == 0 {
		c.ViewportZoom = 1
	}
	if c.GridSize == 0 {
		c.GridSize = 20
	}

	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO canvases (
			id, owner_id, name, is_public, background_color,
			viewport_x, viewport_y, viewport_zoom, grid_enabled, grid_size,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.Name, c.IsPublic, c.BackgroundColor,
		c.ViewportX, c.ViewportY, c.ViewportZoom, c.GridEnabled, c.GridSize,
		fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "create canvas")
	}
	return s.FindCanvasByID(c.ID)
}

// FindCanvasByID retrieves a canvas by id. Soft-deleted canvases are invisible.
func (s *Store) FindCanvasByID(id string) (*Canvas, error) {
	var c Canvas
	var lastAccessed sql.NullString
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, owner_id, name, is_public, background_color,
		       viewport_x, viewport_y, viewport_zoom, grid_enabled, grid_size,
		       last_accessed_at, created_at, updated_at
		FROM canvases WHERE id = ? AND is_deleted = 0
	`, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.IsPublic, &c.BackgroundColor,
		&c.ViewportX, &c.ViewportY, &c.ViewportZoom, &c.GridEnabled, &c.GridSize,
		&lastAccessed, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("canvas %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find canvas")
	}
	c.LastAccessedAt = nullableTime(lastAccessed)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// UpdateCanvas applies a partial update and returns the fresh row.
func (s *Store) UpdateCanvas(id string, u *CanvasUpdates) (*Canvas, error) {
	set := []string{}
	args := []interface{}{}
	add := func(col string, v interface{}) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.IsPublic != nil {
		add("is_public", *u.IsPublic)
	}
	if u.BackgroundColor != nil {
		add("background_color", *u.BackgroundColor)
	}
	if len(set) == 0 {
		return s.FindCanvasByID(id)
	}
	add("updated_at", fmtTime(time.Now()))

	args = append(args, id)
	res, err := s.db.Exec(
		"UPDATE canvases SET "+joinSet(set)+" WHERE id = ? AND is_deleted = 0",
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update canvas")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("canvas %s", id)
	}
	return s.FindCanvasByID(id)
}

// UpdateLastAccessed touches the canvas access timestamp.
func (s *Store) UpdateLastAccessed(id string) error {
	_, err := s.db.Exec(`
		UPDATE canvases SET last_accessed_at = ? WHERE id = ? AND is_deleted = 0
	`, fmtTime(time.Now()), id)
	if err != nil {
		return errors.Wrap(err, "update last accessed")
	}
	return nil
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}
