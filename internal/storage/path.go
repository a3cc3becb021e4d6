package storage

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeKey resolves key below prefix and rejects keys escaping it.
func NormalizeKey(prefix, key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if prefix == "" {
		return cleaned, nil
	}
	return path.Join(prefix, cleaned), nil
}

// ListPrefix is NormalizeKey for listing: an empty prefix lists everything
// below the store prefix and a trailing slash is preserved.
func ListPrefix(storePrefix, prefix string) (string, error) {
	if strings.TrimSpace(strings.Trim(prefix, "/")) == "" {
		if storePrefix == "" {
			return "", nil
		}
		return storePrefix + "/", nil
	}
	key, err := NormalizeKey(storePrefix, prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(prefix, "/") {
		key += "/"
	}
	return key, nil
}

// RelativeKey strips the store prefix from a full object key.
func RelativeKey(storePrefix, key string) string {
	if storePrefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, storePrefix), "/")
}

func CleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}
