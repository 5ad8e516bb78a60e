package store

import (
	"sync"
	"time"
)

// Cache is a read-through TTL cache over canvas metadata, per-canvas shape
// lists and individual shapes. Every write path must invalidate.
type Cache struct {
	store *Store

	mu         sync.Mutex
	canvases   map[string]cacheEntry[*Canvas]
	shapeLists map[string]cacheEntry[[]*Shape]
	shapes     map[string]cacheEntry[*Shape]

	canvasTTL time.Duration
	shapesTTL time.Duration
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewCache creates a cache over the store with the given TTLs.
func NewCache(store *Store, canvasTTL, shapesTTL time.Duration) *Cache {
	return &Cache{
		store:      store,
		canvases:   make(map[string]cacheEntry[*Canvas]),
		shapeLists: make(map[string]cacheEntry[[]*Shape]),
		shapes:     make(map[string]cacheEntry[*Shape]),
		canvasTTL:  canvasTTL,
		shapesTTL:  shapesTTL,
	}
}

// Canvas returns canvas metadata, hitting the store on miss or expiry.
func (c *Cache) Canvas(id string) (*Canvas, error) {
	c.mu.Lock()
	if e, ok := c.canvases[id]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	canvas, err := c.store.FindCanvasByID(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.canvases[id] = cacheEntry[*Canvas]{value: canvas, expiresAt: time.Now().Add(c.canvasTTL)}
	c.mu.Unlock()
	return canvas, nil
}

// Shapes returns the canvas's live shapes, hitting the store on miss or expiry.
func (c *Cache) Shapes(canvasID string) ([]*Shape, error) {
	c.mu.Lock()
	if e, ok := c.shapeLists[canvasID]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	shapes, err := c.store.GetShapes(canvasID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.shapeLists[canvasID] = cacheEntry[[]*Shape]{value: shapes, expiresAt: time.Now().Add(c.shapesTTL)}
	c.mu.Unlock()
	return shapes, nil
}

// Shape returns a single shape, hitting the store on miss or expiry.
func (c *Cache) Shape(id string) (*Shape, error) {
	c.mu.Lock()
	if e, ok := c.shapes[id]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	shape, err := c.store.GetShapeByID(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.shapes[id] = cacheEntry[*Shape]{value: shape, expiresAt: time.Now().Add(c.shapesTTL)}
	c.mu.Unlock()
	return shape, nil
}

// InvalidateCanvas drops cached canvas metadata.
func (c *Cache) InvalidateCanvas(id string) {
	c.mu.Lock()
	delete(c.canvases, id)
	c.mu.Unlock()
}

// InvalidateShape drops the shape and its canvas's shape list.
func (c *Cache) InvalidateShape(canvasID, shapeID string) {
	c.mu.Lock()
	delete(c.shapes, shapeID)
	delete(c.shapeLists, canvasID)
	c.mu.Unlock()
}

// InvalidateShapes drops the canvas's shape list and all listed shapes.
func (c *Cache) InvalidateShapes(canvasID string, shapeIDs []string) {
	c.mu.Lock()
	for _, id := range shapeIDs {
		delete(c.shapes, id)
	}
	delete(c.shapeLists, canvasID)
	c.mu.Unlock()
}
