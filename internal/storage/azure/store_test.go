package azure

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/deltashare/deltashare/internal/storage"
)

func TestOpenScopesStoreToContainerAndPath(t *testing.T) {
	fake := &fakeClient{blobs: []storage.ObjectInfo{
		{Key: "delta/events/_delta_log/00000000000000000000.json", Size: 5, LastModified: time.Unix(100, 0).UTC()},
	}}
	opener, err := NewOpenerWithClient("acct", fake)
	if err != nil {
		t.Fatalf("NewOpenerWithClient() error = %v", err)
	}
	loc, err := storage.ParseLocation("abfss://data@acct.dfs.core.windows.net/delta/events")
	if err != nil {
		t.Fatalf("ParseLocation() error = %v", err)
	}
	store, err := opener.Open(context.Background(), loc)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	blobs, err := store.List(context.Background(), "_delta_log/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastContainer != "data" || fake.lastPrefix != "delta/events/_delta_log/" {
		t.Fatalf("container/prefix = %q/%q", fake.lastContainer, fake.lastPrefix)
	}
	if len(blobs) != 1 || blobs[0].Key != "_delta_log/00000000000000000000.json" {
		t.Fatalf("List() = %+v", blobs)
	}

	reader, err := store.Get(context.Background(), blobs[0].Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(body) != "delta/events/_delta_log/00000000000000000000.json" {
		t.Fatalf("Get() blob = %q", body)
	}
}

func TestOpenRejectsOtherAccount(t *testing.T) {
	opener, err := NewOpenerWithClient("acct", &fakeClient{})
	if err != nil {
		t.Fatalf("NewOpenerWithClient() error = %v", err)
	}
	_, err = opener.Open(context.Background(), storage.Location{Scheme: "abfss", Platform: storage.PlatformAzure, Bucket: "data", Account: "other"})
	if err == nil {
		t.Fatal("expected error for unconfigured account")
	}
}

func TestStatMapsNotFound(t *testing.T) {
	opener, _ := NewOpenerWithClient("acct", &fakeClient{statErr: storage.ErrObjectNotFound})
	store, err := opener.Open(context.Background(), storage.Location{Platform: storage.PlatformAzure, Bucket: "data", Account: "acct"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := store.Stat(context.Background(), "missing"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v", err)
	}
}

type fakeClient struct {
	blobs         []storage.ObjectInfo
	lastContainer string
	lastPrefix    string
	statErr       error
}

func (f *fakeClient) Get(_ context.Context, _, blob string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(blob)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, blob string) (storage.ObjectInfo, error) {
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	return storage.ObjectInfo{Key: blob}, nil
}

func (f *fakeClient) List(_ context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	f.lastContainer = container
	f.lastPrefix = prefix
	out := make([]storage.ObjectInfo, len(f.blobs))
	copy(out, f.blobs)
	return out, nil
}
