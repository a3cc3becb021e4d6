package signer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/storage"
)

// GCP signs V4 URLs with a service account key.
type GCP struct {
	accessID   string
	privateKey []byte
	ttl        time.Duration
	now        clock
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func NewGCPFromFile(path string, ttl time.Duration) (*GCP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return NewGCP(data, ttl)
}

func NewGCP(serviceAccountJSON []byte, ttl time.Duration) (*GCP, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(serviceAccountJSON, &key); err != nil {
		return nil, fmt.Errorf("decode service account key: %w", err)
	}
	if strings.TrimSpace(key.ClientEmail) == "" || strings.TrimSpace(key.PrivateKey) == "" {
		return nil, fmt.Errorf("service account key requires client_email and private_key")
	}
	return &GCP{
		accessID:   key.ClientEmail,
		privateKey: []byte(key.PrivateKey),
		ttl:        normalizeTTL(ttl),
		now:        time.Now,
	}, nil
}

func (g *GCP) Sign(_ context.Context, loc storage.Location) (SignedURL, error) {
	expires := g.now().Add(g.ttl)
	signed, err := gcs.SignedURL(loc.Bucket, loc.Path, &gcs.SignedURLOptions{
		GoogleAccessID: g.accessID,
		PrivateKey:     g.privateKey,
		Method:         http.MethodGet,
		Expires:        expires,
		Scheme:         gcs.SigningSchemeV4,
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("sign %s: %w", loc, err)
	}
	return SignedURL{URL: signed, ExpiresAt: expires}, nil
}
