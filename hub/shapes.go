package hub

import (
	"fmt"
	"time"

	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/store"
)

// handleShapeCreate validates and persists a new shape, then broadcasts it
// to every subscriber, the creator included, so all replicas converge on
// the stored row.
func (h *Hub) handleShapeCreate(s *Session, env *Envelope) {
	var p ShapeCreatePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if err := validateShapeCreate(&p); err != nil {
		s.sendError(err.Error(), "VALIDATION")
		return
	}

	sh := &store.Shape{
		ID:           p.ID,
		Type:         store.ShapeType(p.Type),
		X:            p.X,
		Y:            p.Y,
		Width:        p.Width,
		Height:       p.Height,
		Radius:       p.Radius,
		Rotation:     p.Rotation,
		Fill:         p.Fill,
		Stroke:       p.Stroke,
		StrokeWidth:  p.StrokeWidth,
		Opacity:      1,
		BorderRadius: p.BorderRadius,
		TextContent:  p.TextContent,
		FontSize:     p.FontSize,
		FontFamily:   p.FontFamily,
		IsVisible:    true,
	}
	if p.Opacity != nil {
		sh.Opacity = *p.Opacity
	}
	if p.IsVisible != nil {
		sh.IsVisible = *p.IsVisible
	}
	if p.ZIndex != nil {
		sh.ZIndex = *p.ZIndex
	} else {
		z, err := h.store.NextZIndex(env.CanvasID)
		if err != nil {
			h.logger.Errorw("Failed to compute z-index",
				"canvas_id", env.CanvasID,
				"error", err,
			)
			s.sendError("failed to create shape", "INTERNAL")
			return
		}
		sh.ZIndex = z
	}

	created, err := h.store.CreateShape(env.CanvasID, s.UserID, sh)
	if err != nil {
		h.logger.Errorw("Failed to create shape",
			"canvas_id", env.CanvasID,
			"user_id", s.UserID,
			"error", err,
		)
		s.sendError("failed to create shape", "INTERNAL")
		return
	}
	h.cache.InvalidateShapes(env.CanvasID, nil)

	h.broadcast(env.CanvasID, MsgShapeCreate, created, s.UserID, "", PriorityHigh)
}

// handleShapeUpdate applies a partial update with lock enforcement. The
// isLocked flag is desugared into the durable lock fields; lock
// transitions always broadcast immediately, while plain field updates are
// gated per (canvas, shape) and persist without broadcasting when the gate
// is closed.
func (h *Hub) handleShapeUpdate(s *Session, env *Envelope) {
	var p ShapeUpdatePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if p.ShapeID == "" || p.Updates == nil {
		s.sendError("shapeId and updates are required", "VALIDATION")
		return
	}
	if err := validateShapeUpdates(&p.Updates.ShapeUpdates); err != nil {
		s.sendError(err.Error(), "VALIDATION")
		return
	}

	now := time.Now()
	sh, err := h.store.GetShapeByID(p.ShapeID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.sendError(fmt.Sprintf("shape %s not found", p.ShapeID), "NOT_FOUND")
		} else {
			h.logger.Errorw("Failed to load shape", "shape_id", p.ShapeID, "error", err)
			s.sendError("failed to update shape", "INTERNAL")
		}
		return
	}
	if sh.CanvasID != env.CanvasID {
		s.sendError(fmt.Sprintf("shape %s not found", p.ShapeID), "NOT_FOUND")
		return
	}

	if h.lockConflict(sh, s.UserID, now) {
		s.sendError("Shape is locked by another user", "LOCKED")
		// Re-send the authoritative state so the caller rolls back any
		// optimistic local change.
		frame, err := marshalEnvelope(MsgShapeUpdate, sh, *sh.LockedBy, env.CanvasID)
		if err == nil {
			h.sendHigh(s, frame)
		}
		return
	}

	lockTransition := p.Updates.IsLocked != nil
	if lockTransition {
		if *p.Updates.IsLocked {
			sh, err = h.store.LockShape(p.ShapeID, s.UserID, now)
		} else {
			sh, err = h.store.ClearShapeLock(p.ShapeID)
		}
		if err != nil {
			h.logger.Errorw("Failed to change lock state",
				"shape_id", p.ShapeID,
				"user_id", s.UserID,
				"error", err,
			)
			s.sendError("failed to update shape", "INTERNAL")
			return
		}
	}

	fieldUpdate := !p.Updates.ShapeUpdates.Empty()
	if fieldUpdate {
		sh, err = h.store.UpdateShape(p.ShapeID, s.UserID, &p.Updates.ShapeUpdates)
		if err != nil {
			if errors.IsNotFound(err) {
				s.sendError(fmt.Sprintf("shape %s not found", p.ShapeID), "NOT_FOUND")
			} else {
				h.logger.Errorw("Failed to update shape", "shape_id", p.ShapeID, "error", err)
				s.sendError("failed to update shape", "INTERNAL")
			}
			return
		}
	}
	if !lockTransition && !fieldUpdate {
		return
	}

	h.cache.InvalidateShape(env.CanvasID, p.ShapeID)

	// Lock transitions bypass the gate so acquire and release are never
	// delayed behind drag traffic, and go out immediately. Field updates
	// arriving inside the gap stay persisted but do not fan out; the next
	// passing frame or the sync snapshot carries the latest state. Passing
	// field updates ride the batch tick.
	prio := PriorityHigh
	if !lockTransition {
		if !h.shapeGate.Allow(shapeGateKey(env.CanvasID, p.ShapeID)) {
			return
		}
		prio = PriorityLow
	}

	h.broadcast(env.CanvasID, MsgShapeUpdate, sh, s.UserID, "", prio)
}

// handleShapeDelete soft-deletes one or more shapes. If any target is
// locked by another user nothing is deleted.
func (h *Hub) handleShapeDelete(s *Session, env *Envelope) {
	var p ShapeDeletePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	ids := p.ShapeIDs
	if p.ShapeID != "" {
		ids = append(ids, p.ShapeID)
	}
	if len(ids) == 0 {
		s.sendError("shapeId or shapeIds is required", "VALIDATION")
		return
	}

	now := time.Now()
	for _, id := range ids {
		sh, err := h.store.GetShapeByID(id)
		if err != nil {
			if errors.IsNotFound(err) {
				s.sendError(fmt.Sprintf("shape %s not found", id), "NOT_FOUND")
			} else {
				h.logger.Errorw("Failed to load shape", "shape_id", id, "error", err)
				s.sendError("failed to delete shapes", "INTERNAL")
			}
			return
		}
		if sh.CanvasID != env.CanvasID {
			s.sendError(fmt.Sprintf("shape %s not found", id), "NOT_FOUND")
			return
		}
		if h.lockConflict(sh, s.UserID, now) {
			s.sendError("Shape is locked by another user", "LOCKED")
			return
		}
	}

	if err := h.store.DeleteShapes(ids); err != nil {
		h.logger.Errorw("Failed to delete shapes",
			"canvas_id", env.CanvasID,
			"count", len(ids),
			"error", err,
		)
		s.sendError("failed to delete shapes", "INTERNAL")
		return
	}
	h.cache.InvalidateShapes(env.CanvasID, ids)
	for _, id := range ids {
		h.shapeGate.Forget(shapeGateKey(env.CanvasID, id))
	}

	h.broadcast(env.CanvasID, MsgShapeDelete, ShapeDeleteBroadcast{ShapeIDs: ids}, s.UserID, "", PriorityHigh)
}

// handleShapesBatchUpdate applies up to the configured maximum of partial
// updates in one message. Oversized batches are rejected before anything
// is persisted. Entries whose shape is locked by another user are skipped;
// the rest apply, and the resulting shapes broadcast as a single frame.
func (h *Hub) handleShapesBatchUpdate(s *Session, env *Envelope) {
	var p ShapesBatchUpdatePayload
	if !unmarshalPayload(s, env, &p) {
		return
	}
	if len(p.Updates) == 0 {
		s.sendError("updates must not be empty", "VALIDATION")
		return
	}
	if len(p.Updates) > h.cfg.MaxBatchUpdate {
		s.sendError(fmt.Sprintf("Batch updates limited to %d items", h.cfg.MaxBatchUpdate), "VALIDATION")
		return
	}

	now := time.Now()
	applicable := make([]store.BatchShapeUpdate, 0, len(p.Updates))
	skipped := 0
	for _, entry := range p.Updates {
		if entry.ID == "" || entry.Data == nil {
			s.sendError("each update needs an id and data", "VALIDATION")
			return
		}
		if err := validateShapeUpdates(&entry.Data.ShapeUpdates); err != nil {
			s.sendError(err.Error(), "VALIDATION")
			return
		}
		sh, err := h.store.GetShapeByID(entry.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				s.sendError(fmt.Sprintf("shape %s not found", entry.ID), "NOT_FOUND")
			} else {
				h.logger.Errorw("Failed to load shape", "shape_id", entry.ID, "error", err)
				s.sendError("failed to apply batch update", "INTERNAL")
			}
			return
		}
		if sh.CanvasID != env.CanvasID {
			s.sendError(fmt.Sprintf("shape %s not found", entry.ID), "NOT_FOUND")
			return
		}
		if h.lockConflict(sh, s.UserID, now) {
			skipped++
			continue
		}
		applicable = append(applicable, store.BatchShapeUpdate{
			ID:   entry.ID,
			Data: &entry.Data.ShapeUpdates,
		})
	}
	if skipped > 0 {
		s.sendError(fmt.Sprintf("%d shapes locked by other users were skipped", skipped), "LOCKED")
	}
	if len(applicable) == 0 {
		return
	}

	shapes, err := h.store.BatchUpdateShapes(applicable, s.UserID)
	if err != nil {
		h.logger.Errorw("Failed to apply batch update",
			"canvas_id", env.CanvasID,
			"count", len(applicable),
			"error", err,
		)
		s.sendError("failed to apply batch update", "INTERNAL")
		return
	}
	ids := make([]string, len(applicable))
	for i, u := range applicable {
		ids[i] = u.ID
	}
	h.cache.InvalidateShapes(env.CanvasID, ids)

	h.broadcast(env.CanvasID, MsgShapesBatchUpdate, ShapesBatchUpdateBroadcast{Shapes: shapes}, s.UserID, "", PriorityHigh)
}
