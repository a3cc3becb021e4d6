// Package signer issues time-limited read URLs for data files, one
// implementation per cloud platform.
package signer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/storage"
)

const DefaultTTL = time.Hour

type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

type Signer interface {
	Sign(ctx context.Context, loc storage.Location) (SignedURL, error)
}

// Registry picks the signer for a file from its location's platform.
type Registry map[storage.Platform]Signer

func (r Registry) Sign(ctx context.Context, loc storage.Location) (SignedURL, error) {
	s, ok := r[loc.Platform]
	if !ok || s == nil {
		return SignedURL{}, fmt.Errorf("%w: no signer for %q", storage.ErrUnsupportedPlatform, loc.Scheme)
	}
	signed, err := s.Sign(ctx, loc)
	if err != nil {
		return SignedURL{}, err
	}
	observability.ObserveSignedURL(string(loc.Platform))
	return signed, nil
}

type clock func() time.Time

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
