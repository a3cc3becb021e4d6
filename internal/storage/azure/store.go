package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/deltashare/deltashare/internal/storage"
)

type Config struct {
	AccountName string
	AccountKey  string
	// ServiceURL overrides https://<account>.blob.core.windows.net/, e.g. for Azurite.
	ServiceURL string
}

type client interface {
	Get(ctx context.Context, container, blob string) (io.ReadCloser, error)
	Stat(ctx context.Context, container, blob string) (storage.ObjectInfo, error)
	List(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error)
}

// Opener serves abfs/abfss locations of a single storage account.
type Opener struct {
	account string
	client  client
}

func NewOpener(cfg Config) (*Opener, error) {
	account := strings.TrimSpace(cfg.AccountName)
	if account == "" {
		return nil, fmt.Errorf("azure account name is required")
	}
	cred, err := azblob.NewSharedKeyCredential(account, strings.TrimSpace(cfg.AccountKey))
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	serviceURL := strings.TrimSpace(cfg.ServiceURL)
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	c, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &Opener{account: account, client: &blobClient{client: c}}, nil
}

func NewOpenerWithClient(account string, c client) (*Opener, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	return &Opener{account: strings.TrimSpace(account), client: c}, nil
}

func (o *Opener) Open(_ context.Context, loc storage.Location) (storage.ObjectStore, error) {
	if !strings.EqualFold(loc.Account, o.account) {
		return nil, fmt.Errorf("azure account %q is not configured", loc.Account)
	}
	if strings.TrimSpace(loc.Bucket) == "" {
		return nil, fmt.Errorf("container is required")
	}
	return &Store{client: o.client, container: loc.Bucket, prefix: storage.CleanPrefix(loc.Path)}, nil
}

type Store struct {
	client    client
	container string
	prefix    string
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blob, err := storage.NormalizeKey(s.prefix, key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Get(ctx, s.container, blob)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("download blob %q: %w", blob, err)
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	blob, err := storage.NormalizeKey(s.prefix, key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.client.Stat(ctx, s.container, blob)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("get blob properties %q: %w", blob, err)
	}
	info.Key = storage.RelativeKey(s.prefix, blob)
	return info, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	listPrefix, err := storage.ListPrefix(s.prefix, prefix)
	if err != nil {
		return nil, err
	}
	blobs, err := s.client.List(ctx, s.container, listPrefix)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("list blobs %q: %w", listPrefix, err)
	}
	for i := range blobs {
		blobs[i].Key = storage.RelativeKey(s.prefix, blobs[i].Key)
	}
	return blobs, nil
}

type blobClient struct {
	client *azblob.Client
}

func (b *blobClient) Get(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, mapAzureErr(err)
	}
	return resp.Body, nil
}

func (b *blobClient) Stat(ctx context.Context, container, blob string) (storage.ObjectInfo, error) {
	props, err := b.client.ServiceClient().NewContainerClient(container).NewBlobClient(blob).GetProperties(ctx, nil)
	if err != nil {
		return storage.ObjectInfo{}, mapAzureErr(err)
	}
	info := storage.ObjectInfo{Key: blob}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	if props.LastModified != nil {
		info.LastModified = props.LastModified.UTC()
	}
	return info, nil
}

func (b *blobClient) List(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	pager := b.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzureErr(err)
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := storage.ObjectInfo{Key: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					info.Size = *props.ContentLength
				}
				if props.ETag != nil {
					info.ETag = string(*props.ETag)
				}
				if props.LastModified != nil {
					info.LastModified = props.LastModified.UTC()
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func mapAzureErr(err error) error {
	if err == nil {
		return nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return storage.ErrObjectNotFound
	}
	return err
}
