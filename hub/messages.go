package hub

import (
	"encoding/json"
	"time"

	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/store"
)

// Inbound message types.
const (
	MsgPing              = "PING"
	MsgCursorMove        = "CURSOR_MOVE"
	MsgShapeCreate       = "SHAPE_CREATE"
	MsgShapeUpdate       = "SHAPE_UPDATE"
	MsgShapeDelete       = "SHAPE_DELETE"
	MsgShapesBatchUpdate = "SHAPES_BATCH_UPDATE"
	MsgCanvasSyncRequest = "CANVAS_SYNC_REQUEST"
	MsgReconnectRequest  = "RECONNECT_REQUEST"
	MsgPresenceUpdate    = "PRESENCE_UPDATE"
	MsgCanvasUpdate      = "CANVAS_UPDATE"
	MsgSwitchCanvas      = "SWITCH_CANVAS"
)

// Outbound message types.
const (
	MsgPong           = "PONG"
	MsgCanvasSync     = "CANVAS_SYNC"
	MsgActiveUsers    = "ACTIVE_USERS"
	MsgUserJoin       = "USER_JOIN"
	MsgUserLeave      = "USER_LEAVE"
	MsgCanvasSwitched = "CANVAS_SWITCHED"
	MsgError          = "ERROR"
)

// Envelope is the wire framing for every message in both directions.
// The router overwrites UserID, CanvasID and Timestamp from the
// authenticated session before dispatch; clients cannot spoof them.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	CanvasID  string          `json:"canvasId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// marshalEnvelope serializes an outbound frame once so a broadcast reuses
// the same bytes for every recipient.
func marshalEnvelope(msgType string, payload interface{}, userID, canvasID string) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s payload", msgType)
		}
		raw = data
	}
	frame, err := json.Marshal(Envelope{
		Type:      msgType,
		Payload:   raw,
		UserID:    userID,
		CanvasID:  canvasID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s envelope", msgType)
	}
	return frame, nil
}

// CursorMovePayload is the inbound cursor stream.
type CursorMovePayload struct {
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	ViewportX    *float64 `json:"viewportX,omitempty"`
	ViewportY    *float64 `json:"viewportY,omitempty"`
	ViewportZoom *float64 `json:"viewportZoom,omitempty"`
}

// CursorBroadcast is the outbound cursor frame fanned out to peers.
type CursorBroadcast struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Email       string  `json:"email"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// ShapeCreatePayload carries the new shape's fields. A nil ZIndex means
// "place on top" (max+1).
type ShapeCreatePayload struct {
	ID           string   `json:"id,omitempty"`
	Type         string   `json:"type"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Width        *float64 `json:"width,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Radius       *float64 `json:"radius,omitempty"`
	Rotation     float64  `json:"rotation,omitempty"`
	Fill         string   `json:"fill,omitempty"`
	Stroke       string   `json:"stroke,omitempty"`
	StrokeWidth  float64  `json:"strokeWidth,omitempty"`
	Opacity      *float64 `json:"opacity,omitempty"`
	BorderRadius *float64 `json:"borderRadius,omitempty"`
	TextContent  *string  `json:"textContent,omitempty"`
	FontSize     *float64 `json:"fontSize,omitempty"`
	FontFamily   *string  `json:"fontFamily,omitempty"`
	ZIndex       *int     `json:"zIndex,omitempty"`
	IsVisible    *bool    `json:"isVisible,omitempty"`
}

// ShapeUpdateRequest is the wire form of a shape update. IsLocked is a
// convenience that is always desugared to the two durable lock fields
// before persistence.
type ShapeUpdateRequest struct {
	store.ShapeUpdates
	IsLocked *bool `json:"isLocked,omitempty"`
}

// ShapeUpdatePayload is the inbound SHAPE_UPDATE request.
type ShapeUpdatePayload struct {
	ShapeID string              `json:"shapeId"`
	Updates *ShapeUpdateRequest `json:"updates"`
}

// ShapeDeletePayload accepts either a single id or a list.
type ShapeDeletePayload struct {
	ShapeID  string   `json:"shapeId,omitempty"`
	ShapeIDs []string `json:"shapeIds,omitempty"`
}

// ShapeDeleteBroadcast is the outbound deletion frame.
type ShapeDeleteBroadcast struct {
	ShapeIDs []string `json:"shapeIds"`
}

// BatchUpdateEntry is one entry of an inbound SHAPES_BATCH_UPDATE.
type BatchUpdateEntry struct {
	ID   string              `json:"id"`
	Data *ShapeUpdateRequest `json:"data"`
}

// ShapesBatchUpdatePayload is the inbound batch request.
type ShapesBatchUpdatePayload struct {
	Updates []BatchUpdateEntry `json:"updates"`
}

// ShapesBatchUpdateBroadcast carries the resulting shape list.
type ShapesBatchUpdateBroadcast struct {
	Shapes []*store.Shape `json:"shapes"`
}

// PresenceUpdatePayload is the inbound selection-change message.
type PresenceUpdatePayload struct {
	SelectedObjectIDs []string `json:"selectedObjectIds"`
	IsActive          *bool    `json:"isActive,omitempty"`
}

// PresenceBroadcast is the outbound selection-change frame.
type PresenceBroadcast struct {
	UserID            string   `json:"userId"`
	SelectedObjectIDs []string `json:"selectedObjectIds"`
	IsActive          bool     `json:"isActive"`
}

// CanvasUpdatePayload is the inbound canvas metadata update. Only
// whitelisted fields are applied.
type CanvasUpdatePayload struct {
	Updates *store.CanvasUpdates `json:"updates"`
}

// SwitchCanvasPayload re-targets a live session.
type SwitchCanvasPayload struct {
	CanvasID string `json:"canvasId"`
}

// CanvasSwitchedPayload confirms a completed switch.
type CanvasSwitchedPayload struct {
	CanvasID string `json:"canvasId"`
}

// SyncRequestPayload optionally scopes the snapshot to a viewport. An
// empty payload requests the full canvas.
type SyncRequestPayload struct {
	Viewport *store.Bounds `json:"viewport,omitempty"`
	Limit    int           `json:"limit,omitempty"`
}

// CanvasSyncPayload is the reconnect snapshot: a point-in-time read, not a
// transaction, but individual entities are self-consistent.
type CanvasSyncPayload struct {
	Canvas      *store.Canvas      `json:"canvas"`
	Shapes      []*store.Shape     `json:"shapes"`
	ActiveUsers []*store.ActiveUser `json:"activeUsers"`
}

// ActiveUsersPayload is the full active-user list for a canvas.
type ActiveUsersPayload struct {
	Users []*store.ActiveUser `json:"users"`
}

// UserJoinPayload announces a new peer.
type UserJoinPayload struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Color       string `json:"color"`
}

// UserLeavePayload announces a departed peer.
type UserLeavePayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload is the outbound error frame.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
