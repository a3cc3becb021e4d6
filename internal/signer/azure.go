package signer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/deltashare/deltashare/internal/storage"
)

// Azure signs read-only blob SAS URLs with the account key.
type Azure struct {
	cred *azblob.SharedKeyCredential
	ttl  time.Duration
	now  clock
}

func NewAzure(accountName, accountKey string, ttl time.Duration) (*Azure, error) {
	cred, err := azblob.NewSharedKeyCredential(strings.TrimSpace(accountName), strings.TrimSpace(accountKey))
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	return &Azure{cred: cred, ttl: normalizeTTL(ttl), now: time.Now}, nil
}

func (a *Azure) Sign(_ context.Context, loc storage.Location) (SignedURL, error) {
	account := a.cred.AccountName()
	if !strings.EqualFold(loc.Account, account) {
		return SignedURL{}, fmt.Errorf("sign %s: azure account %q is not configured", loc, loc.Account)
	}
	now := a.now().UTC()
	expires := now.Add(a.ttl)
	perms := sas.BlobPermissions{Read: true}
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute),
		ExpiryTime:    expires,
		Permissions:   perms.String(),
		ContainerName: loc.Bucket,
		BlobName:      loc.Path,
	}.SignWithSharedKey(a.cred)
	if err != nil {
		return SignedURL{}, fmt.Errorf("sign %s: %w", loc, err)
	}
	signed := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s?%s", account, loc.Bucket, escapePath(loc.Path), params.Encode())
	return SignedURL{URL: signed, ExpiresAt: expires}, nil
}
