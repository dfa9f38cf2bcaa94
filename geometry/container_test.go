package geometry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource counts Fetch calls and can be told to fail.
type countingSource struct {
	geom  *Geometry
	err   error
	calls atomic.Int64
}

func (s *countingSource) Fetch(_ context.Context) (*Geometry, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.geom, nil
}

func TestMaterializedContainer(t *testing.T) {
	g := testGeometry(t)
	c := NewMaterialized(g)

	assert.True(t, c.Materialized())
	got, err := c.Materialize(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestDeferredFetchOnce(t *testing.T) {
	src := &countingSource{geom: testGeometry(t)}
	c := NewDeferred(src)
	assert.False(t, c.Materialized())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Materialize(context.Background())
			assert.NoError(t, err)
			assert.Same(t, src.geom, got)
		}()
	}
	wg.Wait()

	assert.True(t, c.Materialized())
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestDeferredNilSource(t *testing.T) {
	c := NewDeferred(nil)
	_, err := c.Materialize(context.Background())
	assert.Error(t, err)
}

// A failed fetch must leave the container deferred so the error resurfaces
// on the next attempt instead of being cached.
func TestDeferredFetchFailure(t *testing.T) {
	boom := errors.New("store offline")
	src := &countingSource{err: boom}
	c := NewDeferred(src)

	_, err := c.Materialize(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Materialized())

	src.err = nil
	src.geom = testGeometry(t)
	got, err := c.Materialize(context.Background())
	require.NoError(t, err)
	assert.Same(t, src.geom, got)
	assert.Equal(t, int64(2), src.calls.Load())
}
