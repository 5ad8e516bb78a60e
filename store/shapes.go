package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate/canvasd/errors"
)

const shapeColumns = `
	id, canvas_id, type, x, y, width, height, radius, rotation,
	fill, stroke, stroke_width, opacity, border_radius,
	text_content, font_size, font_family,
	z_index, is_visible, locked_at, locked_by,
	created_by, last_modified_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShape(row rowScanner) (*Shape, error) {
	var sh Shape
	var width, height, radius, borderRadius, fontSize sql.NullFloat64
	var textContent, fontFamily, lockedAt, lockedBy sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&sh.ID, &sh.CanvasID, &sh.Type, &sh.X, &sh.Y,
		&width, &height, &radius, &sh.Rotation,
		&sh.Fill, &sh.Stroke, &sh.StrokeWidth, &sh.Opacity, &borderRadius,
		&textContent, &fontSize, &fontFamily,
		&sh.ZIndex, &sh.IsVisible, &lockedAt, &lockedBy,
		&sh.CreatedBy, &sh.LastModifiedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if width.Valid {
		sh.Width = &width.Float64
	}
	if height.Valid {
		sh.Height = &height.Float64
	}
	if radius.Valid {
		sh.Radius = &radius.Float64
	}
	if borderRadius.Valid {
		sh.BorderRadius = &borderRadius.Float64
	}
	if textContent.Valid {
		sh.TextContent = &textContent.String
	}
	if fontSize.Valid {
		sh.FontSize = &fontSize.Float64
	}
	if fontFamily.Valid {
		sh.FontFamily = &fontFamily.String
	}
	sh.LockedAt = nullableTime(lockedAt)
	if lockedBy.Valid {
		sh.LockedBy = &lockedBy.String
	}
	sh.CreatedAt = parseTime(createdAt)
	sh.UpdatedAt = parseTime(updatedAt)
	return &sh, nil
}

// NextZIndex returns max(z_index)+1 for the canvas, or 0 on an empty canvas.
func (s *Store) NextZIndex(canvasID string) (int, error) {
	var next int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(z_index) + 1, 0) FROM canvas_objects
		WHERE canvas_id = ? AND is_deleted = 0
	`, canvasID).Scan(&next)
	if err != nil {
		return 0, errors.Wrap(err, "next z-index")
	}
	return next, nil
}

// CreateShape persists a new shape. The caller supplies the z-index
// (NextZIndex for the default max+1 behaviour).
func (s *Store) CreateShape(canvasID, userID string, sh *Shape) (*Shape, error) {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	now := time.Now()

	_, err := s.db.Exec(`
		INSERT INTO canvas_objects (
			id, canvas_id, type, x, y, width, height, radius, rotation,
			fill, stroke, stroke_width, opacity, border_radius,
			text_content, font_size, font_family,
			z_index, is_visible, created_by, last_modified_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sh.ID, canvasID, string(sh.Type), sh.X, sh.Y,
		nullFloat(sh.Width), nullFloat(sh.Height), nullFloat(sh.Radius), sh.Rotation,
		sh.Fill, sh.Stroke, sh.StrokeWidth, sh.Opacity, nullFloat(sh.BorderRadius),
		nullString(sh.TextContent), nullFloat(sh.FontSize), nullString(sh.FontFamily),
		sh.ZIndex, sh.IsVisible, userID, userID, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "create shape")
	}

	return s.GetShapeByID(sh.ID)
}

// GetShapes returns all live shapes on a canvas ordered by z-index.
func (s *Store) GetShapes(canvasID string) ([]*Shape, error) {
	rows, err := s.db.Query(`
		SELECT `+shapeColumns+`
		FROM canvas_objects
		WHERE canvas_id = ? AND is_deleted = 0
		ORDER BY z_index, created_at
	`, canvasID)
	if err != nil {
		return nil, errors.Wrap(err, "get shapes")
	}
	defer rows.Close()

	return collectShapes(rows)
}

// GetShapesInViewport returns live shapes intersecting the bounds, capped
// at limit (0 means no cap).
func (s *Store) GetShapesInViewport(canvasID string, b Bounds, limit int) ([]*Shape, error) {
	query := `
		SELECT ` + shapeColumns + `
		FROM canvas_objects
		WHERE canvas_id = ? AND is_deleted = 0
		  AND x <= ? AND x + COALESCE(width, COALESCE(radius, 0) * 2) >= ?
		  AND y <= ? AND y + COALESCE(height, COALESCE(radius, 0) * 2) >= ?
		ORDER BY z_index, created_at`
	args := []interface{}{canvasID, b.MaxX, b.MinX, b.MaxY, b.MinY}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "get shapes in viewport")
	}
	defer rows.Close()

	return collectShapes(rows)
}

// GetShapeByID retrieves a live shape by id.
func (s *Store) GetShapeByID(id string) (*Shape, error) {
	row := s.db.QueryRow(`
		SELECT `+shapeColumns+`
		FROM canvas_objects WHERE id = ? AND is_deleted = 0
	`, id)
	sh, err := scanShape(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("shape %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get shape")
	}
	return sh, nil
}

// UpdateShape applies a partial non-lock update and returns the fresh row.
func (s *Store) UpdateShape(id, userID string, u *ShapeUpdates) (*Shape, error) {
	set := []string{}
	args := []interface{}{}
	add := func(col string, v interface{}) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if u.X != nil {
		add("x", *u.X)
	}
	if u.Y != nil {
		add("y", *u.Y)
	}
	if u.Width != nil {
		add("width", *u.Width)
	}
	if u.Height != nil {
		add("height", *u.Height)
	}
	if u.Radius != nil {
		add("radius", *u.Radius)
	}
	if u.Rotation != nil {
		add("rotation", *u.Rotation)
	}
	if u.Fill != nil {
		add("fill", *u.Fill)
	}
	if u.Stroke != nil {
		add("stroke", *u.Stroke)
	}
	if u.StrokeWidth != nil {
		add("stroke_width", *u.StrokeWidth)
	}
	if u.Opacity != nil {
		add("opacity", *u.Opacity)
	}
	if u.BorderRadius != nil {
		add("border_radius", *u.BorderRadius)
	}
	if u.TextContent != nil {
		add("text_content", *u.TextContent)
	}
	if u.FontSize != nil {
		add("font_size", *u.FontSize)
	}
	if u.FontFamily != nil {
		add("font_family", *u.FontFamily)
	}
	if u.ZIndex != nil {
		add("z_index", *u.ZIndex)
	}
	if u.IsVisible != nil {
		add("is_visible", *u.IsVisible)
	}
	if len(set) == 0 {
		return s.GetShapeByID(id)
	}
	add("last_modified_by", userID)
	add("updated_at", fmtTime(time.Now()))

	args = append(args, id)
	res, err := s.db.Exec(
		"UPDATE canvas_objects SET "+joinSet(set)+" WHERE id = ? AND is_deleted = 0",
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update shape")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("shape %s", id)
	}
	return s.GetShapeByID(id)
}

// BatchUpdateShapes applies each entry in order and returns the resulting
// shapes. Callers run lock checks before calling.
func (s *Store) BatchUpdateShapes(updates []BatchShapeUpdate, userID string) ([]*Shape, error) {
	shapes := make([]*Shape, 0, len(updates))
	for _, u := range updates {
		sh, err := s.UpdateShape(u.ID, userID, u.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "batch update shape %s", u.ID)
		}
		shapes = append(shapes, sh)
	}
	return shapes, nil
}

// DeleteShape soft-deletes a shape.
func (s *Store) DeleteShape(id string) error {
	return s.DeleteShapes([]string{id})
}

// DeleteShapes soft-deletes the given shapes.
func (s *Store) DeleteShapes(ids []string) error {
	now := fmtTime(time.Now())
	for _, id := range ids {
		if _, err := s.db.Exec(`
			UPDATE canvas_objects SET is_deleted = 1, updated_at = ? WHERE id = ?
		`, now, id); err != nil {
			return errors.Wrapf(err, "delete shape %s", id)
		}
	}
	return nil
}

// LockShape writes both lock fields, acquiring or refreshing the lock.
func (s *Store) LockShape(id, userID string, at time.Time) (*Shape, error) {
	res, err := s.db.Exec(`
		UPDATE canvas_objects
		SET locked_at = ?, locked_by = ?, last_modified_by = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`, fmtTime(at), userID, userID, fmtTime(at), id)
	if err != nil {
		return nil, errors.Wrap(err, "lock shape")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("shape %s", id)
	}
	return s.GetShapeByID(id)
}

// ClearShapeLock clears both lock fields.
func (s *Store) ClearShapeLock(id string) (*Shape, error) {
	res, err := s.db.Exec(`
		UPDATE canvas_objects
		SET locked_at = NULL, locked_by = NULL, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`, fmtTime(time.Now()), id)
	if err != nil {
		return nil, errors.Wrap(err, "clear shape lock")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("shape %s", id)
	}
	return s.GetShapeByID(id)
}

// GetExpiredLocks returns live shapes on the canvas whose lock predates
// olderThan. Timestamps are compared after parsing, not as strings.
func (s *Store) GetExpiredLocks(canvasID string, olderThan time.Time) ([]*Shape, error) {
	rows, err := s.db.Query(`
		SELECT `+shapeColumns+`
		FROM canvas_objects
		WHERE canvas_id = ? AND is_deleted = 0 AND locked_at IS NOT NULL
	`, canvasID)
	if err != nil {
		return nil, errors.Wrap(err, "get expired locks")
	}
	defer rows.Close()

	locked, err := collectShapes(rows)
	if err != nil {
		return nil, err
	}

	var expired []*Shape
	for _, sh := range locked {
		if sh.LockedAt != nil && sh.LockedAt.Before(olderThan) {
			expired = append(expired, sh)
		}
	}
	return expired, nil
}

// UnlockShapesByUser clears every lock the user holds on the canvas and
// returns the released shapes.
func (s *Store) UnlockShapesByUser(userID, canvasID string) ([]*Shape, error) {
	rows, err := s.db.Query(`
		SELECT id FROM canvas_objects
		WHERE canvas_id = ? AND locked_by = ? AND is_deleted = 0
	`, canvasID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find locks by user")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan lock id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate locks by user")
	}

	released := make([]*Shape, 0, len(ids))
	for _, id := range ids {
		sh, err := s.ClearShapeLock(id)
		if err != nil {
			return released, err
		}
		released = append(released, sh)
	}
	return released, nil
}

func collectShapes(rows *sql.Rows) ([]*Shape, error) {
	var shapes []*Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shape")
		}
		shapes = append(shapes, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate shapes")
	}
	return shapes, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
