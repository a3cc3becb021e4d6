package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

type Platform string

const (
	PlatformAWS   Platform = "aws"
	PlatformGCP   Platform = "gcp"
	PlatformAzure Platform = "azure"
)

// PlatformForScheme maps a table location scheme to its cloud platform.
func PlatformForScheme(scheme string) (Platform, bool) {
	switch strings.ToLower(scheme) {
	case "s3", "s3a":
		return PlatformAWS, true
	case "gs":
		return PlatformGCP, true
	case "abfss", "abfs":
		return PlatformAzure, true
	default:
		return "", false
	}
}

// Location is a parsed table or file URI such as s3://bucket/path or
// abfss://container@account.dfs.core.windows.net/path. Bucket holds the
// container name for Azure. Path never starts or ends with a slash.
type Location struct {
	Scheme   string
	Platform Platform
	Bucket   string
	Account  string
	Path     string
}

func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	platform, ok := PlatformForScheme(scheme)
	if !ok {
		return Location{}, fmt.Errorf("%w: location %q", ErrUnsupportedPlatform, raw)
	}

	loc := Location{Scheme: scheme, Platform: platform, Path: CleanPrefix(parsed.Path)}
	if platform == PlatformAzure {
		container := parsed.User.Username()
		account, _, _ := strings.Cut(parsed.Host, ".")
		if container == "" || account == "" {
			return Location{}, fmt.Errorf("azure location %q must look like %s://container@account.dfs.core.windows.net/path", raw, scheme)
		}
		loc.Bucket = container
		loc.Account = account
	} else {
		loc.Bucket = parsed.Host
	}
	if loc.Bucket == "" {
		return Location{}, fmt.Errorf("location %q has no bucket", raw)
	}
	return loc, nil
}

func (l Location) String() string {
	host := l.Bucket
	if l.Platform == PlatformAzure {
		host = l.Bucket + "@" + l.Account + ".dfs.core.windows.net"
	}
	if l.Path == "" {
		return l.Scheme + "://" + host
	}
	return l.Scheme + "://" + host + "/" + l.Path
}

// Join resolves a path recorded in a Delta log against the table root. Log
// paths are either URL-encoded relative paths or absolute URIs.
func (l Location) Join(rel string) (Location, error) {
	if strings.Contains(rel, "://") {
		return ParseLocation(rel)
	}
	unescaped, err := url.PathUnescape(rel)
	if err != nil {
		return Location{}, fmt.Errorf("unescape path %q: %w", rel, err)
	}
	joined := l
	joined.Path = CleanPrefix(path.Join(l.Path, unescaped))
	return joined, nil
}
