// Package pagination implements keyset pagination over name-ordered
// collections. The page token is the name of the first item of the next page.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	// MaxLimit bounds maxResults so a page request never asks storage for an
	// unbounded or overflowing row count.
	MaxLimit = 1000
)

var ErrInvalidLimit = errors.New("pagination: invalid maxResults")

// Params is a validated page request. Cursor is nil when the caller asks for
// the first page.
type Params struct {
	Limit  int
	Cursor *string
}

// ParseParams validates the raw maxResults and pageToken query values.
func ParseParams(maxResults, pageToken string) (Params, error) {
	params := Params{Limit: DefaultLimit}
	if raw := strings.TrimSpace(maxResults); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidLimit, maxResults)
		}
		if limit < 0 {
			return Params{}, fmt.Errorf("%w: %d is negative", ErrInvalidLimit, limit)
		}
		if limit > MaxLimit {
			return Params{}, fmt.Errorf("%w: %d exceeds %d", ErrInvalidLimit, limit, MaxLimit)
		}
		params.Limit = limit
	}
	if pageToken != "" {
		cursor := pageToken
		params.Cursor = &cursor
	}
	return params, nil
}

type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// NewPage trims rows fetched with limit+1 into a page. When the extra row is
// present its key becomes the next page token.
func NewPage[T any](rows []T, limit int, key func(T) string) Page[T] {
	if len(rows) > limit {
		return Page[T]{Items: rows[:limit], NextPageToken: key(rows[limit])}
	}
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Items: rows}
}

// FetchFunc loads up to limit rows ordered by name with name >= after when
// after is set.
type FetchFunc[T any] func(ctx context.Context, limit int, after *string) ([]T, error)

func Fetch[T any](ctx context.Context, params Params, key func(T) string, fetch FetchFunc[T]) (Page[T], error) {
	if params.Limit < 0 || params.Limit > MaxLimit {
		return Page[T]{}, fmt.Errorf("%w: %d is outside [0, %d]", ErrInvalidLimit, params.Limit, MaxLimit)
	}
	rows, err := fetch(ctx, params.Limit+1, params.Cursor)
	if err != nil {
		return Page[T]{}, err
	}
	return NewPage(rows, params.Limit, key), nil
}
