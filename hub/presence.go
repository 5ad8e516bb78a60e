package hub

import (
	"time"

	"github.com/tessellate/canvasd/store"
)

// handlePing answers immediately and refreshes the presence heartbeat off
// the hot path.
func (h *Hub) handlePing(s *Session, env *Envelope) {
	s.isAlive.Store(true)
	s.sendEnvelope(MsgPong, nil, s.UserID)

	userID, canvasID := s.UserID, env.CanvasID
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.store.RefreshHeartbeat(userID, canvasID); err != nil {
			h.logger.Debugw("Failed to refresh heartbeat",
				"user_id", userID,
				"canvas_id", canvasID,
				"error", err,
			)
		}
	}()
}

// handleCursorMove gates the stream per connection, fans the position out
// to peers on the batch tick and persists presence asynchronously. Frames
// arriving inside the throttle gap are dropped entirely.
func (h *Hub) handleCursorMove(s *Session, env *Envelope) {
	var p CursorMovePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if !h.cursorGate.Allow(s.ID) {
		return
	}

	h.markActivity(s.UserID)

	h.broadcast(env.CanvasID, MsgCursorMove, CursorBroadcast{
		UserID:      s.UserID,
		Username:    s.User.Username,
		DisplayName: s.User.DisplayName,
		Email:       s.User.Email,
		Color:       s.User.AvatarColor,
		X:           p.X,
		Y:           p.Y,
	}, s.UserID, s.ID, PriorityLow)

	// Persistence is fire and forget; a lost write only costs one cursor
	// position in the next snapshot. The upsert recreates the row when the
	// TTL sweep removed it while the user was still connected.
	presence := &store.Presence{
		UserID:       s.UserID,
		CanvasID:     env.CanvasID,
		CursorX:      p.X,
		CursorY:      p.Y,
		ViewportX:    p.ViewportX,
		ViewportY:    p.ViewportY,
		ViewportZoom: p.ViewportZoom,
		Color:        s.User.AvatarColor,
		ConnectionID: s.ID,
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.store.TouchPresence(presence); err != nil {
			h.logger.Debugw("Failed to persist cursor position",
				"user_id", presence.UserID,
				"canvas_id", presence.CanvasID,
				"error", err,
			)
		}
	}()
}

// handlePresenceUpdate persists the selection change before broadcasting so
// peers never see a selection the next snapshot would contradict.
func (h *Hub) handlePresenceUpdate(s *Session, env *Envelope) {
	var p PresenceUpdatePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if p.SelectedObjectIDs == nil {
		p.SelectedObjectIDs = []string{}
	}
	isActive := true
	if p.IsActive != nil {
		isActive = *p.IsActive
	}

	if err := h.store.UpdatePresenceSelection(s.UserID, env.CanvasID, p.SelectedObjectIDs, isActive); err != nil {
		h.logger.Warnw("Failed to persist presence update",
			"user_id", s.UserID,
			"canvas_id", env.CanvasID,
			"error", err,
		)
		s.sendError("failed to update presence", "INTERNAL")
		return
	}

	h.broadcast(env.CanvasID, MsgPresenceUpdate, PresenceBroadcast{
		UserID:            s.UserID,
		SelectedObjectIDs: p.SelectedObjectIDs,
		IsActive:          isActive,
	}, s.UserID, s.ID, PriorityLow)
}

// broadcastActiveUsers sends the full active-user list to every subscriber
// of the canvas, each recipient's own entry included.
func (h *Hub) broadcastActiveUsers(canvasID string) {
	since := time.Now().Add(-h.cfg.PresenceTTL)
	users, err := h.store.GetActivePresence(canvasID, since)
	if err != nil {
		h.logger.Warnw("Failed to load active presence",
			"canvas_id", canvasID,
			"error", err,
		)
		return
	}
	h.broadcast(canvasID, MsgActiveUsers, ActiveUsersPayload{Users: users}, "", "", PriorityHigh)
}

// runPresenceCleanup deletes presence rows whose heartbeat aged past the
// TTL and refreshes the roster of each affected canvas.
func (h *Hub) runPresenceCleanup() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PresenceCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Debugw("Presence cleanup stopping due to context cancellation")
			return
		case <-ticker.C:
			olderThan := time.Now().Add(-h.cfg.PresenceTTL)
			canvasIDs, err := h.store.CleanupStalePresence(olderThan)
			if err != nil {
				h.logger.Warnw("Presence cleanup failed", "error", err)
				continue
			}
			for _, canvasID := range canvasIDs {
				h.broadcastActiveUsers(canvasID)
			}
		}
	}
}
