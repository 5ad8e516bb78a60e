package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/store"
)

// handleSyncRequest serves CANVAS_SYNC_REQUEST and RECONNECT_REQUEST. Both
// answer with the same snapshot shape, sent to the requester only; an
// optional viewport scopes the shape list.
func (h *Hub) handleSyncRequest(s *Session, env *Envelope) {
	var p SyncRequestPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.sendError("malformed payload: "+err.Error(), "VALIDATION")
			return
		}
	}
	if p.Viewport != nil {
		h.sendViewportSync(s, *p.Viewport, p.Limit)
		return
	}
	h.sendCanvasSync(s)
}

// sendViewportSync is the viewport-scoped variant: shapes come straight
// from the store's spatial query, bypassing the list cache.
func (h *Hub) sendViewportSync(s *Session, bounds store.Bounds, limit int) {
	canvasID := s.CanvasID()

	canvas, err := h.cache.Canvas(canvasID)
	if err != nil {
		h.logger.Errorw("Failed to load canvas", "canvas_id", canvasID, "error", err)
		s.sendError("failed to build canvas snapshot", "INTERNAL")
		return
	}
	shapes, err := h.store.GetShapesInViewport(canvasID, bounds, limit)
	if err != nil {
		h.logger.Errorw("Failed to query viewport shapes", "canvas_id", canvasID, "error", err)
		s.sendError("failed to build canvas snapshot", "INTERNAL")
		return
	}
	users, err := h.store.GetActivePresence(canvasID, time.Now().Add(-h.cfg.PresenceTTL))
	if err != nil {
		h.logger.Errorw("Failed to load active presence", "canvas_id", canvasID, "error", err)
		s.sendError("failed to build canvas snapshot", "INTERNAL")
		return
	}

	s.sendEnvelope(MsgCanvasSync, CanvasSyncPayload{
		Canvas:      canvas,
		Shapes:      shapes,
		ActiveUsers: users,
	}, s.UserID)
}

// sendCanvasSync builds and delivers the snapshot for the session's
// current canvas. The three reads run in parallel; the snapshot is a
// point-in-time read, not a transaction.
func (h *Hub) sendCanvasSync(s *Session) {
	canvasID := s.CanvasID()

	var (
		wg        sync.WaitGroup
		canvas    *store.Canvas
		shapes    []*store.Shape
		users     []*store.ActiveUser
		canvasErr error
		shapesErr error
		usersErr  error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		canvas, canvasErr = h.cache.Canvas(canvasID)
	}()
	go func() {
		defer wg.Done()
		shapes, shapesErr = h.cache.Shapes(canvasID)
	}()
	go func() {
		defer wg.Done()
		users, usersErr = h.store.GetActivePresence(canvasID, time.Now().Add(-h.cfg.PresenceTTL))
	}()
	wg.Wait()

	if canvasErr != nil || shapesErr != nil || usersErr != nil {
		h.logger.Errorw("Failed to build canvas snapshot",
			"canvas_id", canvasID,
			"canvas_error", canvasErr,
			"shapes_error", shapesErr,
			"presence_error", usersErr,
		)
		s.sendError("failed to build canvas snapshot", "INTERNAL")
		return
	}
	if shapes == nil {
		shapes = []*store.Shape{}
	}
	if users == nil {
		users = []*store.ActiveUser{}
	}

	s.sendEnvelope(MsgCanvasSync, CanvasSyncPayload{
		Canvas:      canvas,
		Shapes:      shapes,
		ActiveUsers: users,
	}, s.UserID)
}

// handleCanvasUpdate applies a whitelisted metadata update and broadcasts
// the stored canvas to every subscriber, the sender included.
func (h *Hub) handleCanvasUpdate(s *Session, env *Envelope) {
	var p CanvasUpdatePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if p.Updates == nil {
		s.sendError("updates are required", "VALIDATION")
		return
	}
	if err := validateCanvasUpdates(p.Updates); err != nil {
		s.sendError(err.Error(), "VALIDATION")
		return
	}

	canvas, err := h.store.UpdateCanvas(env.CanvasID, p.Updates)
	if err != nil {
		if errors.IsNotFound(err) {
			s.sendError("canvas not found", "NOT_FOUND")
		} else {
			h.logger.Errorw("Failed to update canvas",
				"canvas_id", env.CanvasID,
				"error", err,
			)
			s.sendError("failed to update canvas", "INTERNAL")
		}
		return
	}
	h.cache.InvalidateCanvas(env.CanvasID)

	h.broadcast(env.CanvasID, MsgCanvasUpdate, canvas, s.UserID, "", PriorityHigh)
}

// handleSwitchCanvas re-targets a live session to another canvas without
// tearing the socket down: the old canvas sees a leave, the new one a
// join, and the session receives a fresh snapshot.
func (h *Hub) handleSwitchCanvas(s *Session, env *Envelope) {
	var p SwitchCanvasPayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if !validCanvasID(p.CanvasID) {
		s.sendError("invalid canvasId", "VALIDATION")
		return
	}
	oldCanvasID := s.CanvasID()
	if p.CanvasID == oldCanvasID {
		h.sendCanvasSync(s)
		return
	}

	allowed, err := h.store.CheckAccess(p.CanvasID, s.UserID)
	if err != nil && !errors.IsNotFound(err) {
		h.logger.Errorw("Access check failed",
			"canvas_id", p.CanvasID,
			"user_id", s.UserID,
			"error", err,
		)
		s.sendError("failed to switch canvas", "INTERNAL")
		return
	}
	if err != nil || !allowed {
		s.sendError("canvas access denied", "FORBIDDEN")
		return
	}

	// Leave the old canvas: release the user's locks there unless another
	// of their sessions is still subscribed, then drop presence.
	if !h.registry.UserHasSessions(s.UserID, s.ID) {
		released, err := h.store.UnlockShapesByUser(s.UserID, oldCanvasID)
		if err != nil {
			h.logger.Warnw("Failed to release locks on canvas switch",
				"user_id", s.UserID,
				"canvas_id", oldCanvasID,
				"error", err,
			)
		}
		for _, sh := range released {
			h.cache.InvalidateShape(oldCanvasID, sh.ID)
			h.broadcast(oldCanvasID, MsgShapeUpdate, sh, s.UserID, "", PriorityHigh)
		}
	}
	if err := h.store.RemovePresenceByConnection(s.ID); err != nil {
		h.logger.Warnw("Failed to remove presence on canvas switch",
			"connection_id", s.ID,
			"error", err,
		)
	}

	h.registry.Move(s.ID, p.CanvasID)
	if len(h.registry.Subscribers(oldCanvasID)) == 0 {
		h.shapeGate.ForgetPrefix(oldCanvasID + "/")
	}
	h.batcher.drop(s.ID)

	h.broadcast(oldCanvasID, MsgUserLeave, UserLeavePayload{UserID: s.UserID}, s.UserID, s.ID, PriorityHigh)
	h.broadcastActiveUsers(oldCanvasID)

	if err := h.store.UpsertPresence(&store.Presence{
		UserID:       s.UserID,
		CanvasID:     p.CanvasID,
		Color:        s.User.AvatarColor,
		ConnectionID: s.ID,
		IsActive:     true,
	}); err != nil {
		h.logger.Warnw("Failed to create presence on canvas switch",
			"connection_id", s.ID,
			"canvas_id", p.CanvasID,
			"error", err,
		)
	}
	if err := h.store.UpdateLastAccessed(p.CanvasID); err != nil {
		h.logger.Debugw("Failed to touch canvas access time",
			"canvas_id", p.CanvasID,
			"error", err,
		)
	}

	s.sendEnvelope(MsgCanvasSwitched, CanvasSwitchedPayload{CanvasID: p.CanvasID}, s.UserID)

	h.broadcast(p.CanvasID, MsgUserJoin, UserJoinPayload{
		UserID:      s.UserID,
		Username:    s.User.Username,
		DisplayName: s.User.DisplayName,
		Email:       s.User.Email,
		Color:       s.User.AvatarColor,
	}, s.UserID, s.ID, PriorityHigh)
	h.broadcastActiveUsers(p.CanvasID)

	h.sendCanvasSync(s)

	h.logger.Infow("Session switched canvas",
		"connection_id", s.ID,
		"user_id", s.UserID,
		"from", oldCanvasID,
		"to", p.CanvasID,
	)
}
