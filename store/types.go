// Package store persists canvases, canvas objects and presence rows in
// SQLite and is the single source of truth for durable state.
package store

import "time"

// ShapeType enumerates the drawable primitives.
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeText      ShapeType = "text"
	ShapeLine      ShapeType = "line"
	ShapePolygon   ShapeType = "polygon"
	ShapeImage     ShapeType = "image"
)

// ValidShapeType reports whether t names a known shape type.
func ValidShapeType(t ShapeType) bool {
	switch t {
	case ShapeRectangle, ShapeCircle, ShapeText, ShapeLine, ShapePolygon, ShapeImage:
		return true
	}
	return false
}

// User is a stable identity. Users are never hard-deleted.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarColor string    `json:"avatarColor"`
	IsOnline    bool      `json:"isOnline"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Canvas is a drawing surface.
type Canvas struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Name            string     `json:"name"`
	IsPublic        bool       `json:"isPublic"`
	BackgroundColor string     `json:"backgroundColor"`
	ViewportX       float64    `json:"viewportX"`
	ViewportY       float64    `json:"viewportY"`
	ViewportZoom    float64    `json:"viewportZoom"`
	GridEnabled     bool       `json:"gridEnabled"`
	GridSize        float64    `json:"gridSize"`
	IsDeleted       bool       `json:"-"`
	LastAccessedAt  *time.Time `json:"lastAccessedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Shape is a persisted canvas object. The lock fields move together:
// locked_at is NULL exactly when locked_by is NULL.
type Shape struct {
	ID             string     `json:"id"`
	CanvasID       string     `json:"canvasId"`
	Type           ShapeType  `json:"type"`
	X              float64    `json:"x"`
	Y              float64    `json:"y"`
	Width          *float64   `json:"width,omitempty"`
	Height         *float64   `json:"height,omitempty"`
	Radius         *float64   `json:"radius,omitempty"`
	Rotation       float64    `json:"rotation"`
	Fill           string     `json:"fill"`
	Stroke         string     `json:"stroke"`
	StrokeWidth    float64    `json:"strokeWidth"`
	Opacity        float64    `json:"opacity"`
	BorderRadius   *float64   `json:"borderRadius,omitempty"`
	TextContent    *string    `json:"textContent,omitempty"`
	FontSize       *float64   `json:"fontSize,omitempty"`
	FontFamily     *string    `json:"fontFamily,omitempty"`
	ZIndex         int        `json:"zIndex"`
	IsVisible      bool       `json:"isVisible"`
	IsDeleted      bool       `json:"-"`
	LockedAt       *time.Time `json:"lockedAt"`
	LockedBy       *string    `json:"lockedBy"`
	CreatedBy      string     `json:"createdBy"`
	LastModifiedBy string     `json:"lastModifiedBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// LockedNow reports whether the shape carries a lock that has not expired.
func (sh *Shape) LockedNow(now time.Time, ttl time.Duration) bool {
	return sh.LockedAt != nil && now.Sub(*sh.LockedAt) <= ttl
}

// ShapeUpdates is a partial update to a shape. Nil fields are untouched.
// Lock transitions are not expressed here; they go through LockShape and
// ClearShapeLock so the two durable lock fields always move together.
type ShapeUpdates struct {
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Width        *float64 `json:"width,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Radius       *float64 `json:"radius,omitempty"`
	Rotation     *float64 `json:"rotation,omitempty"`
	Fill         *string  `json:"fill,omitempty"`
	Stroke       *string  `json:"stroke,omitempty"`
	StrokeWidth  *float64 `json:"strokeWidth,omitempty"`
	Opacity      *float64 `json:"opacity,omitempty"`
	BorderRadius *float64 `json:"borderRadius,omitempty"`
	TextContent  *string  `json:"textContent,omitempty"`
	FontSize     *float64 `json:"fontSize,omitempty"`
	FontFamily   *string  `json:"fontFamily,omitempty"`
	ZIndex       *int     `json:"zIndex,omitempty"`
	IsVisible    *bool    `json:"isVisible,omitempty"`
}

// Empty reports whether the update touches no fields.
func (u *ShapeUpdates) Empty() bool {
	return u.X == nil && u.Y == nil && u.Width == nil && u.Height == nil &&
		u.Radius == nil && u.Rotation == nil && u.Fill == nil && u.Stroke == nil &&
		u.StrokeWidth == nil && u.Opacity == nil && u.BorderRadius == nil &&
		u.TextContent == nil && u.FontSize == nil && u.FontFamily == nil &&
		u.ZIndex == nil && u.IsVisible == nil
}

// BatchShapeUpdate is one entry of a SHAPES_BATCH_UPDATE request.
type BatchShapeUpdate struct {
	ID   string        `json:"id"`
	Data *ShapeUpdates `json:"data"`
}

// CanvasUpdates is a partial update to canvas metadata.
type CanvasUpdates struct {
	Name            *string `json:"name,omitempty"`
	IsPublic        *bool   `json:"isPublic,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
}

// Bounds is a viewport rectangle for spatial shape queries.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Presence is a per (user, canvas) liveness row with upsert semantics.
type Presence struct {
	UserID            string    `json:"userId"`
	CanvasID          string    `json:"canvasId"`
	CursorX           float64   `json:"cursorX"`
	CursorY           float64   `json:"cursorY"`
	ViewportX         *float64  `json:"viewportX,omitempty"`
	ViewportY         *float64  `json:"viewportY,omitempty"`
	ViewportZoom      *float64  `json:"viewportZoom,omitempty"`
	SelectedObjectIDs []string  `json:"selectedObjectIds"`
	Color             string    `json:"color"`
	ConnectionID      string    `json:"connectionId"`
	LastHeartbeat     time.Time `json:"lastHeartbeat"`
	IsActive          bool      `json:"isActive"`
}

// ActiveUser is a presence row joined with user display fields, as carried
// by ACTIVE_USERS broadcasts and CANVAS_SYNC snapshots.
type ActiveUser struct {
	UserID            string   `json:"userId"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"displayName"`
	Email             string   `json:"email"`
	Color             string   `json:"color"`
	CursorX           float64  `json:"cursorX"`
	CursorY           float64  `json:"cursorY"`
	SelectedObjectIDs []string `json:"selectedObjectIds"`
}
