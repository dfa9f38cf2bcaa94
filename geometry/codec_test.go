package geometry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisgo/seisgo/blobstore"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := testGeometry(t)

	blob, err := Encode(g)
	require.NoError(t, err)
	assert.Equal(t, codecMagic, string(blob[:4]))

	got, err := Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, g.NumSources(), got.NumSources())
	assert.Equal(t, g.Dim(), got.Dim())
	for s := 0; s < g.NumSources(); s++ {
		assert.Equal(t, g.T(s), got.T(s))
		assert.Equal(t, g.Dt(s), got.Dt(s))
		assert.Equal(t, g.Positions(s), got.Positions(s))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	g := testGeometry(t)
	blob, err := Encode(g)
	require.NoError(t, err)

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] = 'X'
		_, err := Decode(bad)
		assert.Error(t, err)
	})
	t.Run("BadVersion", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[4] = 99
		_, err := Decode(bad)
		assert.Error(t, err)
	})
	t.Run("Truncated", func(t *testing.T) {
		_, err := Decode(blob[:3])
		assert.Error(t, err)
	})
	t.Run("CorruptFrame", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		for i := 5; i < len(bad); i++ {
			bad[i] ^= 0xa5
		}
		_, err := Decode(bad)
		assert.Error(t, err)
	})
}

func TestBlobContainer(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	g := testGeometry(t)

	blob, err := Encode(g)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "surveys/2026/line-04", blob))

	c := NewBlobContainer(store, "surveys/2026/line-04")
	assert.False(t, c.Materialized())

	got, err := c.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, g.NumSources(), got.NumSources())
	assert.Equal(t, g.Positions(1), got.Positions(1))
}

func TestBlobContainerMissing(t *testing.T) {
	c := NewBlobContainer(blobstore.NewMemoryStore(), "surveys/none")
	_, err := c.Materialize(context.Background())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
