package hub

import "sync"

// Registry maintains the two routing maps: connectionId → session and
// canvasId → subscriber set. Entries are created and removed atomically
// with session lifecycle; sessions are referenced by id everywhere else.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	canvases map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		canvases: make(map[string]map[string]struct{}),
	}
}

// Add registers the session in both maps.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	subs, ok := r.canvases[s.CanvasID()]
	if !ok {
		subs = make(map[string]struct{})
		r.canvases[s.CanvasID()] = subs
	}
	subs[s.ID] = struct{}{}
}

// Remove unregisters the connection from both maps and returns the removed
// session, or nil if it was not registered.
func (r *Registry) Remove(connectionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return nil
	}
	delete(r.sessions, connectionID)
	if subs, ok := r.canvases[s.CanvasID()]; ok {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(r.canvases, s.CanvasID())
		}
	}
	return s
}

// Get returns the session for a connection id, or nil.
func (r *Registry) Get(connectionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connectionID]
}

// Subscribers returns the sessions currently subscribed to the canvas.
func (r *Registry) Subscribers(canvasID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.canvases[canvasID]
	out := make([]*Session, 0, len(subs))
	for id := range subs {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Sessions returns every registered session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CanvasIDs returns the canvases with at least one subscriber.
func (r *Registry) CanvasIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.canvases))
	for id := range r.canvases {
		out = append(out, id)
	}
	return out
}

// UserHasSessions reports whether the user has any session left, excluding
// the given connection.
func (r *Registry) UserHasSessions(userID, excludeConnectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.sessions {
		if id != excludeConnectionID && s.UserID == userID {
			return true
		}
	}
	return false
}

// Move re-targets a live session to another canvas, updating the
// subscription set and the session's canvas id under one lock.
func (r *Registry) Move(connectionID, newCanvasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	if subs, ok := r.canvases[s.CanvasID()]; ok {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(r.canvases, s.CanvasID())
		}
	}
	s.setCanvasID(newCanvasID)
	subs, ok := r.canvases[newCanvasID]
	if !ok {
		subs = make(map[string]struct{})
		r.canvases[newCanvasID] = subs
	}
	subs[connectionID] = struct{}{}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
