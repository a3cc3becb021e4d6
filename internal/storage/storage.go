package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrObjectNotFound      = errors.New("object not found")
	ErrUnsupportedPlatform = errors.New("unsupported storage platform")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectStore is a read-only view of one bucket below a fixed prefix. Keys
// passed in and returned are relative to that prefix.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Opener returns an ObjectStore rooted at a location.
type Opener interface {
	Open(ctx context.Context, loc Location) (ObjectStore, error)
}

// Router dispatches Open calls by the location's platform.
type Router map[Platform]Opener

func (r Router) Open(ctx context.Context, loc Location) (ObjectStore, error) {
	opener, ok := r[loc.Platform]
	if !ok || opener == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, loc.Scheme)
	}
	return opener.Open(ctx, loc)
}
