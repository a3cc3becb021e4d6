package storage

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	key, err := NormalizeKey("tables/events", "/_delta_log/00000000000000000000.json")
	if err != nil {
		t.Fatalf("NormalizeKey() error = %v", err)
	}
	if key != "tables/events/_delta_log/00000000000000000000.json" {
		t.Fatalf("NormalizeKey() = %q", key)
	}
	if _, err := NormalizeKey("tables", "../secrets.txt"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestListPrefixKeepsTrailingSlash(t *testing.T) {
	prefix, err := ListPrefix("tables/events", "_delta_log/")
	if err != nil {
		t.Fatalf("ListPrefix() error = %v", err)
	}
	if prefix != "tables/events/_delta_log/" {
		t.Fatalf("ListPrefix() = %q", prefix)
	}
	prefix, err = ListPrefix("", "")
	if err != nil || prefix != "" {
		t.Fatalf("ListPrefix(empty) = %q, %v", prefix, err)
	}
}

func TestRelativeKey(t *testing.T) {
	if got := RelativeKey("a/b", "a/b/_delta_log/1.json"); got != "_delta_log/1.json" {
		t.Fatalf("RelativeKey() = %q", got)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw      string
		platform Platform
		bucket   string
		account  string
		path     string
	}{
		{"s3://bucket-a/tables/events/", PlatformAWS, "bucket-a", "", "tables/events"},
		{"s3a://bucket-a/events", PlatformAWS, "bucket-a", "", "events"},
		{"gs://lake/events", PlatformGCP, "lake", "", "events"},
		{"abfss://data@acct.dfs.core.windows.net/delta/events", PlatformAzure, "data", "acct", "delta/events"},
		{"abfs://data@acct.dfs.core.windows.net", PlatformAzure, "data", "acct", ""},
	}
	for _, tc := range tests {
		loc, err := ParseLocation(tc.raw)
		if err != nil {
			t.Fatalf("ParseLocation(%q) error = %v", tc.raw, err)
		}
		if loc.Platform != tc.platform || loc.Bucket != tc.bucket || loc.Account != tc.account || loc.Path != tc.path {
			t.Fatalf("ParseLocation(%q) = %+v", tc.raw, loc)
		}
	}
}

func TestParseLocationRejectsUnknownScheme(t *testing.T) {
	_, err := ParseLocation("file:///tmp/events")
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("ParseLocation() error = %v, want ErrUnsupportedPlatform", err)
	}
	if _, err := ParseLocation("abfss://acct.dfs.core.windows.net/x"); err == nil {
		t.Fatal("expected error for azure location without container")
	}
}

func TestLocationJoin(t *testing.T) {
	root, err := ParseLocation("s3://bucket-a/tables/events")
	if err != nil {
		t.Fatalf("ParseLocation() error = %v", err)
	}
	file, err := root.Join("date=2024-01-01/part%20one.parquet")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if file.Path != "tables/events/date=2024-01-01/part one.parquet" {
		t.Fatalf("Join().Path = %q", file.Path)
	}
	if file.String() != "s3://bucket-a/tables/events/date=2024-01-01/part one.parquet" {
		t.Fatalf("Join().String() = %q", file.String())
	}

	abs, err := root.Join("s3://other/x.parquet")
	if err != nil {
		t.Fatalf("Join(absolute) error = %v", err)
	}
	if abs.Bucket != "other" || abs.Path != "x.parquet" {
		t.Fatalf("Join(absolute) = %+v", abs)
	}
}

func TestRouterRejectsMissingPlatform(t *testing.T) {
	_, err := Router{}.Open(context.Background(), Location{Scheme: "gs", Platform: PlatformGCP})
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("Open() error = %v", err)
	}
}
