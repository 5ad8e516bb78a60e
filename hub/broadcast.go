package hub

import (
	"sync"
	"time"
)

// Priority is the two-level broadcast class. High frames are sent in the
// current tick, preceded by a flush of the recipient's pending batch so
// per-connection ordering stays FIFO. Low frames coalesce in the
// per-recipient queue until the next batch tick.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// batcher holds the per-recipient outbound FIFO queues flushed on the
// batch tick.
type batcher struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

func newBatcher() *batcher {
	return &batcher{queues: make(map[string][][]byte)}
}

func (b *batcher) enqueue(connectionID string, frame []byte) {
	b.mu.Lock()
	b.queues[connectionID] = append(b.queues[connectionID], frame)
	b.mu.Unlock()
}

// take removes and returns the pending queue for a connection.
func (b *batcher) take(connectionID string) [][]byte {
	b.mu.Lock()
	frames := b.queues[connectionID]
	delete(b.queues, connectionID)
	b.mu.Unlock()
	return frames
}

// drop discards a connection's pending queue.
func (b *batcher) drop(connectionID string) {
	b.mu.Lock()
	delete(b.queues, connectionID)
	b.mu.Unlock()
}

// connectionIDs lists connections with pending frames.
func (b *batcher) connectionIDs() []string {
	b.mu.Lock()
	ids := make([]string, 0, len(b.queues))
	for id := range b.queues {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	return ids
}

// Broadcast fans a frame out to every subscriber of the canvas except the
// excluded connection. The frame is serialized once by the caller.
func (h *Hub) broadcastFrame(canvasID string, frame []byte, excludeConnectionID string, prio Priority) int {
	sent := 0
	for _, peer := range h.registry.Subscribers(canvasID) {
		if peer.ID == excludeConnectionID {
			continue
		}
		if prio == PriorityHigh {
			h.sendHigh(peer, frame)
		} else {
			h.batcher.enqueue(peer.ID, frame)
		}
		sent++
	}
	return sent
}

// broadcast marshals and fans out a typed message.
func (h *Hub) broadcast(canvasID, msgType string, payload interface{}, userID, excludeConnectionID string, prio Priority) {
	frame, err := marshalEnvelope(msgType, payload, userID, canvasID)
	if err != nil {
		h.logger.Errorw("Failed to marshal broadcast",
			"type", msgType,
			"canvas_id", canvasID,
			"error", err,
		)
		return
	}
	h.broadcastFrame(canvasID, frame, excludeConnectionID, prio)
}

// sendHigh delivers a frame immediately, flushing the recipient's pending
// batch first to preserve FIFO order per connection. The take-and-send is
// serialized with flushBatches through the session's order mutex; without
// it, a flusher that has taken the queue but not yet written could let the
// high frame overtake the earlier low frames.
func (h *Hub) sendHigh(s *Session, frame []byte) {
	s.ordMu.Lock()
	defer s.ordMu.Unlock()

	for _, pending := range h.batcher.take(s.ID) {
		s.trySend(pending)
	}
	s.trySend(frame)
}

// flushBatches copies queued frames to their recipients. It never blocks
// on store I/O; recipients that disconnected between enqueue and flush
// have their queues dropped.
func (h *Hub) flushBatches() {
	for _, connectionID := range h.batcher.connectionIDs() {
		s := h.registry.Get(connectionID)
		if s == nil {
			h.batcher.drop(connectionID)
			continue
		}
		s.ordMu.Lock()
		for _, frame := range h.batcher.take(connectionID) {
			if !s.trySend(frame) {
				break
			}
		}
		s.ordMu.Unlock()
	}
}

// runBatchFlusher drives the batch tick.
func (h *Hub) runBatchFlusher() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Debugw("Batch flusher stopping due to context cancellation")
			return
		case <-ticker.C:
			h.flushBatches()
		}
	}
}
