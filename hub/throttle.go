package hub

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// gateSet is a keyed minimum-gap gate: one token-bucket limiter per key
// with burst 1, so each key passes at most once per minGap plus the
// initial token. Keys are connection ids for the cursor stream and
// canvasId+shapeId for the shape stream.
type gateSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func newGateSet(minGap time.Duration) *gateSet {
	return &gateSet{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(minGap),
	}
}

// Allow reports whether the keyed stream may emit now, consuming a token
// if so.
func (g *gateSet) Allow(key string) bool {
	g.mu.Lock()
	lim, ok := g.limiters[key]
	if !ok {
		lim = rate.NewLimiter(g.limit, 1)
		g.limiters[key] = lim
	}
	g.mu.Unlock()
	return lim.Allow()
}

// Forget drops the limiter for a key.
func (g *gateSet) Forget(key string) {
	g.mu.Lock()
	delete(g.limiters, key)
	g.mu.Unlock()
}

// ForgetPrefix drops every limiter whose key starts with prefix. Used to
// release a canvas's shape gates when its last subscriber leaves.
func (g *gateSet) ForgetPrefix(prefix string) {
	g.mu.Lock()
	for key := range g.limiters {
		if strings.HasPrefix(key, prefix) {
			delete(g.limiters, key)
		}
	}
	g.mu.Unlock()
}

// shapeGateKey builds the per (canvas, shape) throttle key.
func shapeGateKey(canvasID, shapeID string) string {
	return canvasID + "/" + shapeID
}
