// Package hub is the realtime collaboration core: it admits authenticated
// sessions onto canvases, routes typed messages, enforces shape locks,
// throttles and batches broadcasts, and drives the periodic lock-expiry,
// presence-cleanup and heartbeat loops.
package hub

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tessellate/canvasd/auth"
	"github.com/tessellate/canvasd/config"
	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/store"
)

// ShutdownTimeout bounds how long Stop waits for goroutines to drain.
const ShutdownTimeout = 10 * time.Second

var canvasIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,100}$`)

// validCanvasID accepts the canvas id shape or a canonical UUID.
func validCanvasID(id string) bool {
	if canvasIDPattern.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Hub owns the subscription registry, throttle and batch engines, the
// cursor-activity map and every timer loop. It is constructed once at
// startup with explicit dependencies; there is no global state.
type Hub struct {
	cfg      config.HubConfig
	devMode  bool
	store    *store.Store
	cache    *store.Cache
	verifier *auth.Verifier
	logger   *zap.SugaredLogger

	registry   *Registry
	batcher    *batcher
	cursorGate *gateSet
	shapeGate  *gateSet

	// lastCursorActivity gates the lock sweep: a holder who moved their
	// cursor recently keeps their lock even after the lock TTL.
	activityMu         sync.Mutex
	lastCursorActivity map[string]time.Time

	handlers map[string]handlerFunc
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a hub. Call Start to launch the timer loops.
func New(cfg config.HubConfig, devMode bool, st *store.Store, cache *store.Cache, verifier *auth.Verifier, logger *zap.SugaredLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		cfg:                cfg,
		devMode:            devMode,
		store:              st,
		cache:              cache,
		verifier:           verifier,
		logger:             logger,
		registry:           NewRegistry(),
		batcher:            newBatcher(),
		cursorGate:         newGateSet(cfg.CursorThrottle),
		shapeGate:          newGateSet(cfg.ShapeThrottle),
		lastCursorActivity: make(map[string]time.Time),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
	h.registerHandlers()
	return h
}

// Start launches the batch flusher, lock sweep, presence cleanup and
// heartbeat loops.
func (h *Hub) Start() {
	h.wg.Add(4)
	go h.runBatchFlusher()
	go h.runLockSweep()
	go h.runPresenceCleanup()
	go h.runHeartbeat()

	h.logger.Infow("Hub started",
		"heartbeat_interval", h.cfg.HeartbeatInterval,
		"lock_ttl", h.cfg.LockTTL,
		"batch_interval", h.cfg.BatchInterval,
	)
}

// Stop halts the timers, flushes remaining batches, closes every socket
// with a normal-closure code and waits for goroutines to drain.
func (h *Hub) Stop() {
	h.logger.Infow("Initiating hub shutdown")

	h.flushBatches()

	for _, s := range h.registry.Sessions() {
		h.registry.Remove(s.ID)
		s.closeWithCode(websocket.CloseNormalClosure, "server shutting down")
	}

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Infow("All hub goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		h.logger.Warnw("Hub shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}
}

// ServeWS upgrades the connection and runs admission. Failures send an
// ERROR frame and close with 1008 (policy) or 1011 (internal); the
// admission path never leaves a partial session in the registry.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	canvasID := r.URL.Query().Get("canvasId")
	if !validCanvasID(canvasID) {
		h.rejectConn(conn, websocket.ClosePolicyViolation, "invalid canvasId")
		return
	}

	claims, err := h.resolveIdentity(r)
	if err != nil {
		h.rejectConn(conn, websocket.ClosePolicyViolation, "authentication failed: "+err.Error())
		return
	}

	allowed, err := h.store.CheckAccess(canvasID, claims.UserID)
	if err != nil && !errors.IsNotFound(err) {
		h.rejectConn(conn, websocket.CloseInternalServerErr, "access check failed")
		return
	}
	if err != nil || !allowed {
		h.rejectConn(conn, websocket.ClosePolicyViolation, "canvas access denied")
		return
	}

	user, err := h.store.GetOrCreateUser(&store.User{
		ID:          claims.UserID,
		Username:    claims.Username,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		AvatarColor: auth.ColorForUser(claims.UserID),
	})
	if err != nil {
		h.rejectConn(conn, websocket.CloseInternalServerErr, "user lookup failed")
		return
	}
	if user.AvatarColor == "" {
		user.AvatarColor = auth.ColorForUser(user.ID)
		if err := h.store.SetUserColor(user.ID, user.AvatarColor); err != nil {
			h.logger.Warnw("Failed to persist avatar color",
				"user_id", user.ID,
				"error", err,
			)
		}
	}
	if err := h.store.SetUserOnline(user.ID, true); err != nil {
		h.logger.Warnw("Failed to mark user online", "user_id", user.ID, "error", err)
	}
	if err := h.store.UpdateLastAccessed(canvasID); err != nil {
		h.logger.Debugw("Failed to touch canvas access time", "canvas_id", canvasID, "error", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		User:     user,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBufferSize),
		canvasID: canvasID,
	}
	s.isAlive.Store(true)

	if err := h.store.UpsertPresence(&store.Presence{
		UserID:       user.ID,
		CanvasID:     canvasID,
		Color:        user.AvatarColor,
		ConnectionID: s.ID,
		IsActive:     true,
	}); err != nil {
		h.rejectConn(conn, websocket.CloseInternalServerErr, "presence init failed")
		return
	}

	h.registry.Add(s)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		s.writePump()
	}()
	go func() {
		defer h.wg.Done()
		s.readPump()
	}()

	h.logger.Infow("Session admitted",
		"connection_id", s.ID,
		"user_id", user.ID,
		"canvas_id", canvasID,
		"total_sessions", h.registry.Count(),
	)

	h.sendCanvasSync(s)

	h.broadcast(canvasID, MsgUserJoin, UserJoinPayload{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Color:       user.AvatarColor,
	}, user.ID, s.ID, PriorityHigh)
	h.broadcastActiveUsers(canvasID)
}

// resolveIdentity verifies the bearer token, or accepts a bare userId in
// development mode only.
func (h *Hub) resolveIdentity(r *http.Request) (*auth.Claims, error) {
	if token := auth.TokenFromRequest(r); token != "" {
		return h.verifier.Verify(token)
	}
	if h.devMode {
		if userID := r.URL.Query().Get("userId"); userID != "" {
			return &auth.Claims{
				UserID:      userID,
				Username:    userID,
				DisplayName: userID,
			}, nil
		}
	}
	return nil, errors.Wrap(errors.ErrUnauthorized, "no credential supplied")
}

// rejectConn answers a failed admission: ERROR frame, close frame, close.
// The session was never registered, so no cleanup is needed.
func (h *Hub) rejectConn(conn *websocket.Conn, code int, message string) {
	frame, err := marshalEnvelope(MsgError, ErrorPayload{Message: message}, "", "")
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, frame)
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, message), time.Now().Add(writeWait))
	conn.Close()

	h.logger.Warnw("Connection rejected",
		"close_code", code,
		"reason", message,
	)
}

// disconnect runs the full termination path for a session. Safe to call
// more than once; only the first call finds the session registered.
func (h *Hub) disconnect(s *Session) {
	if h.registry.Remove(s.ID) == nil {
		return
	}
	canvasID := s.CanvasID()

	if err := h.store.RemovePresenceByConnection(s.ID); err != nil {
		h.logger.Warnw("Failed to remove presence",
			"connection_id", s.ID,
			"error", err,
		)
	}

	// Release locks and mark offline only when this was the user's last
	// session on the hub.
	if !h.registry.UserHasSessions(s.UserID, s.ID) {
		if err := h.store.SetUserOnline(s.UserID, false); err != nil {
			h.logger.Warnw("Failed to mark user offline", "user_id", s.UserID, "error", err)
		}
		released, err := h.store.UnlockShapesByUser(s.UserID, canvasID)
		if err != nil {
			h.logger.Warnw("Failed to release locks on disconnect",
				"user_id", s.UserID,
				"canvas_id", canvasID,
				"error", err,
			)
		}
		for _, sh := range released {
			h.cache.InvalidateShape(canvasID, sh.ID)
			h.broadcast(canvasID, MsgShapeUpdate, sh, s.UserID, "", PriorityHigh)
		}
		h.clearActivity(s.UserID)
	}

	h.broadcast(canvasID, MsgUserLeave, UserLeavePayload{UserID: s.UserID}, s.UserID, s.ID, PriorityHigh)
	h.broadcastActiveUsers(canvasID)

	h.cursorGate.Forget(s.ID)
	if len(h.registry.Subscribers(canvasID)) == 0 {
		h.shapeGate.ForgetPrefix(canvasID + "/")
	}
	h.batcher.drop(s.ID)
	s.close()

	h.logger.Infow("Session disconnected",
		"connection_id", s.ID,
		"user_id", s.UserID,
		"canvas_id", canvasID,
		"total_sessions", h.registry.Count(),
	)
}

// runHeartbeat pings every session each interval. A session that missed
// the previous ping (isAlive still false) is terminated through the full
// disconnect path.
func (h *Hub) runHeartbeat() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Debugw("Heartbeat loop stopping due to context cancellation")
			return
		case <-ticker.C:
			for _, s := range h.registry.Sessions() {
				if !s.isAlive.Load() {
					h.logger.Infow("Session missed heartbeat, terminating",
						"connection_id", s.ID,
						"user_id", s.UserID,
					)
					s.conn.Close() // readPump exit runs the disconnect path
					continue
				}
				s.isAlive.Store(false)
				s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
		}
	}
}

// markActivity stamps the user's most recent cursor motion.
func (h *Hub) markActivity(userID string) {
	h.activityMu.Lock()
	h.lastCursorActivity[userID] = time.Now()
	h.activityMu.Unlock()
}

// lastActivity returns the user's most recent cursor motion; the zero time
// when the user never moved.
func (h *Hub) lastActivity(userID string) time.Time {
	h.activityMu.Lock()
	defer h.activityMu.Unlock()
	return h.lastCursorActivity[userID]
}

func (h *Hub) clearActivity(userID string) {
	h.activityMu.Lock()
	delete(h.lastCursorActivity, userID)
	h.activityMu.Unlock()
}
