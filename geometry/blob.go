package geometry

import (
	"context"
	"fmt"

	"github.com/seisgo/seisgo/blobstore"
)

// BlobSource fetches a geometry blob from a blob store on first use.
type BlobSource struct {
	Store blobstore.Store
	Name  string
}

// Fetch implements Source.
func (b BlobSource) Fetch(ctx context.Context) (*Geometry, error) {
	data, err := b.Store.Get(ctx, b.Name)
	if err != nil {
		return nil, fmt.Errorf("geometry: fetch %q: %w", b.Name, err)
	}
	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("geometry: decode %q: %w", b.Name, err)
	}
	return g, nil
}

// NewBlobContainer is shorthand for a deferred container backed by a blob.
func NewBlobContainer(store blobstore.Store, name string) *Container {
	return NewDeferred(BlobSource{Store: store, Name: name})
}
