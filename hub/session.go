package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessellate/canvasd/store"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer (a 100-entry batch update
	// stays well under this)
	maxMessageSize = 512 * 1024
)

// Session is a live authenticated connection bound to exactly one canvas
// at a time. It exists strictly between admission and socket close and is
// never persisted.
type Session struct {
	ID     string
	UserID string
	User   *store.User

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex // guards canvasID (mutated by SWITCH_CANVAS)
	canvasID string

	// ordMu serializes draining this session's batch queue with immediate
	// sends, so a high-priority frame can never overtake a low frame that
	// was queued before it.
	ordMu sync.Mutex

	isAlive   atomic.Bool
	closeOnce sync.Once
}

// CanvasID returns the canvas the session is currently subscribed to.
func (s *Session) CanvasID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvasID
}

func (s *Session) setCanvasID(id string) {
	s.mu.Lock()
	s.canvasID = id
	s.mu.Unlock()
}

// trySend queues a frame without blocking. A full channel means the
// recipient cannot keep up; the frame is dropped and the condition logged.
func (s *Session) trySend(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		s.hub.logger.Warnw("Session send channel full, dropping frame",
			"connection_id", s.ID,
			"user_id", s.UserID,
		)
		return false
	}
}

// readPump reads inbound frames and dispatches them until the socket
// closes, then runs the full disconnect path.
func (s *Session) readPump() {
	defer func() {
		s.hub.disconnect(s)
		s.conn.Close()
	}()

	readWait := 2*s.hub.cfg.HeartbeatInterval + writeWait
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPongHandler(func(string) error {
		s.isAlive.Store(true)
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	s.hub.logger.Debugw("Read pump started",
		"connection_id", s.ID,
		"user_id", s.UserID,
	)

	for {
		_, messageBytes, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			break
		}
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		s.hub.dispatch(s, messageBytes)
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, normal, no status) are silently ignored.
func (s *Session) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		s.hub.logger.Warnw("WebSocket read error",
			"error", err.Error(),
			"connection_id", s.ID,
			"user_id", s.UserID,
		)
	}
}

// writePump is the single socket writer: it drains the send channel in
// FIFO order. Control frames (ping, close) go through WriteControl and may
// be written concurrently.
func (s *Session) writePump() {
	defer s.conn.Close()

	s.hub.logger.Debugw("Write pump started", "connection_id", s.ID)

	for {
		select {
		case <-s.hub.ctx.Done():
			s.hub.logger.Debugw("Write pump stopping due to hub shutdown",
				"connection_id", s.ID,
			)
			return
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.logger.Debugw("Frame write error",
					"error", err.Error(),
					"connection_id", s.ID,
				)
				return
			}
		}
	}
}

// sendEnvelope marshals and queues a frame for this session only.
func (s *Session) sendEnvelope(msgType string, payload interface{}, userID string) {
	frame, err := marshalEnvelope(msgType, payload, userID, s.CanvasID())
	if err != nil {
		s.hub.logger.Errorw("Failed to marshal frame",
			"type", msgType,
			"connection_id", s.ID,
			"error", err,
		)
		return
	}
	s.trySend(frame)
}

// sendError emits an ERROR frame to this session.
func (s *Session) sendError(message, code string) {
	s.sendEnvelope(MsgError, ErrorPayload{Message: message, Code: code}, "")
}

// closeWithCode writes a close control frame and closes the socket.
func (s *Session) closeWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	s.conn.Close()
}

// close safely closes the send channel using sync.Once to prevent
// double-close panics.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.send != nil {
			close(s.send)
		}
	})
}

// unmarshalPayload decodes a payload into dst, answering the client with a
// validation error on malformed JSON.
func unmarshalPayload(s *Session, env *Envelope, dst interface{}) bool {
	if len(env.Payload) == 0 {
		s.sendError("missing payload", "VALIDATION")
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		s.sendError("malformed payload: "+err.Error(), "VALIDATION")
		return false
	}
	return true
}
