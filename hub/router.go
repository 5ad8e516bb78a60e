package hub

import (
	"encoding/json"
	"time"
)

// handlerFunc processes one inbound message for a session.
type handlerFunc func(s *Session, env *Envelope)

func (h *Hub) registerHandlers() {
	h.handlers = map[string]handlerFunc{
		MsgPing:              h.handlePing,
		MsgCursorMove:        h.handleCursorMove,
		MsgShapeCreate:       h.handleShapeCreate,
		MsgShapeUpdate:       h.handleShapeUpdate,
		MsgShapeDelete:       h.handleShapeDelete,
		MsgShapesBatchUpdate: h.handleShapesBatchUpdate,
		MsgCanvasSyncRequest: h.handleSyncRequest,
		MsgReconnectRequest:  h.handleSyncRequest,
		MsgPresenceUpdate:    h.handlePresenceUpdate,
		MsgCanvasUpdate:      h.handleCanvasUpdate,
		MsgSwitchCanvas:      h.handleSwitchCanvas,
	}
}

// dispatch decodes one inbound frame and routes it. The envelope's identity
// fields are overwritten from the authenticated session; whatever the
// client sent there is discarded. Unknown types are logged and ignored so
// newer clients do not kill older servers.
func (h *Hub) dispatch(s *Session, messageBytes []byte) {
	var env Envelope
	if err := json.Unmarshal(messageBytes, &env); err != nil {
		h.logger.Debugw("Discarding malformed frame",
			"connection_id", s.ID,
			"error", err,
		)
		s.sendError("malformed message envelope", "VALIDATION")
		return
	}

	env.UserID = s.UserID
	env.CanvasID = s.CanvasID()
	env.Timestamp = time.Now().UnixMilli()

	handler, ok := h.handlers[env.Type]
	if !ok {
		h.logger.Debugw("Ignoring unknown message type",
			"type", env.Type,
			"connection_id", s.ID,
		)
		return
	}
	handler(s, &env)
}
