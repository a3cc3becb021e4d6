package signer

import (
	"context"
	"fmt"
	"time"

	"github.com/deltashare/deltashare/internal/storage"
)

type presigner interface {
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// AWS presigns S3 GET requests with the object store's static credentials.
type AWS struct {
	presigner presigner
	ttl       time.Duration
	now       clock
}

func NewAWS(p presigner, ttl time.Duration) (*AWS, error) {
	if p == nil {
		return nil, fmt.Errorf("presigner is required")
	}
	return &AWS{presigner: p, ttl: normalizeTTL(ttl), now: time.Now}, nil
}

func (a *AWS) Sign(ctx context.Context, loc storage.Location) (SignedURL, error) {
	expires := a.now().Add(a.ttl)
	signed, err := a.presigner.Presign(ctx, loc.Bucket, loc.Path, a.ttl)
	if err != nil {
		return SignedURL{}, fmt.Errorf("sign %s: %w", loc, err)
	}
	return SignedURL{URL: signed, ExpiresAt: expires}, nil
}
