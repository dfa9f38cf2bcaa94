package geometry

import (
	"context"
	"fmt"
	"sync"
)

// Source fetches a geometry from an out-of-core store. Fetch is called at
// most once per Container.
type Source interface {
	Fetch(ctx context.Context) (*Geometry, error)
}

// Container is the two-state geometry holder: deferred until first numeric
// use, then materialized. Materialize is idempotent and safe to call
// concurrently from evaluations sharing the same data container.
type Container struct {
	mu   sync.Mutex
	geom *Geometry
	src  Source
}

// NewMaterialized wraps an already materialized geometry.
func NewMaterialized(g *Geometry) *Container {
	return &Container{geom: g}
}

// NewDeferred creates a container whose geometry is fetched from src on
// first use.
func NewDeferred(src Source) *Container {
	return &Container{src: src}
}

// Materialize returns the geometry, fetching it on first call. A failed
// fetch leaves the container deferred so the error is visible on every
// attempt rather than cached.
func (c *Container) Materialize(ctx context.Context) (*Geometry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.geom != nil {
		return c.geom, nil
	}
	if c.src == nil {
		return nil, fmt.Errorf("geometry: container has neither geometry nor source")
	}
	g, err := c.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.geom = g
	c.src = nil
	return g, nil
}

// Materialized reports whether the geometry has been fetched.
func (c *Container) Materialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geom != nil
}
