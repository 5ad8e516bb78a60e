package hub

import (
	"time"

	"github.com/tessellate/canvasd/store"
)

// lockConflict reports whether the shape is held by another user and that
// hold has not expired. An expired lock never blocks; the caller may steal
// it by acquiring.
func (h *Hub) lockConflict(sh *store.Shape, userID string, now time.Time) bool {
	if sh.LockedBy == nil || *sh.LockedBy == userID {
		return false
	}
	return sh.LockedNow(now, h.cfg.LockTTL)
}

// runLockSweep releases expired locks on canvases with live subscribers.
// Expiry alone is not enough: a holder whose cursor moved within the TTL
// is still mid-interaction, so their locks survive until the activity ages
// out too. Each release broadcasts the unlocked shape so every client
// drops its lock indicator.
func (h *Hub) runLockSweep() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.LockSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Debugw("Lock sweep stopping due to context cancellation")
			return
		case <-ticker.C:
			h.sweepExpiredLocks(time.Now())
		}
	}
}

func (h *Hub) sweepExpiredLocks(now time.Time) {
	for _, canvasID := range h.registry.CanvasIDs() {
		expired, err := h.store.GetExpiredLocks(canvasID, now.Add(-h.cfg.LockTTL))
		if err != nil {
			h.logger.Warnw("Failed to query expired locks",
				"canvas_id", canvasID,
				"error", err,
			)
			continue
		}
		for _, sh := range expired {
			holder := *sh.LockedBy
			if now.Sub(h.lastActivity(holder)) < h.cfg.LockTTL {
				continue
			}
			unlocked, err := h.store.ClearShapeLock(sh.ID)
			if err != nil {
				h.logger.Warnw("Failed to release expired lock",
					"shape_id", sh.ID,
					"holder", holder,
					"error", err,
				)
				continue
			}
			h.cache.InvalidateShape(canvasID, sh.ID)
			h.broadcast(canvasID, MsgShapeUpdate, unlocked, holder, "", PriorityHigh)

			h.logger.Debugw("Released expired lock",
				"shape_id", sh.ID,
				"holder", holder,
				"canvas_id", canvasID,
			)
		}
	}
}
