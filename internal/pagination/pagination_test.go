package pagination

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

// sortedFetch serves name >= after ORDER BY name LIMIT limit over items,
// which must already be sorted.
func sortedFetch(items []string) FetchFunc[string] {
	return func(_ context.Context, limit int, after *string) ([]string, error) {
		var rows []string
		for _, item := range items {
			if after != nil && item < *after {
				continue
			}
			if len(rows) == limit {
				break
			}
			rows = append(rows, item)
		}
		return rows, nil
	}
}

func TestFetchIteratesToExhaustion(t *testing.T) {
	fetch := sortedFetch([]string{"a", "b", "c", "d", "e"})

	params, err := ParseParams("2", "")
	require.NoError(t, err)

	var pages [][]string
	var tokens []string
	for {
		page, err := Fetch(context.Background(), params, identity, fetch)
		require.NoError(t, err)
		pages = append(pages, page.Items)
		tokens = append(tokens, page.NextPageToken)
		if page.NextPageToken == "" {
			break
		}
		params, err = ParseParams("2", page.NextPageToken)
		require.NoError(t, err)
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, pages)
	assert.Equal(t, []string{"c", "e", ""}, tokens)
}

func TestFetchWithZeroLimitReturnsTokenOnly(t *testing.T) {
	page, err := Fetch(context.Background(), Params{Limit: 0}, identity, sortedFetch([]string{"a", "b"}))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "a", page.NextPageToken)
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, params.Limit)
	assert.Nil(t, params.Cursor)

	params, err = ParseParams("0", "b")
	require.NoError(t, err)
	assert.Equal(t, 0, params.Limit)
	require.NotNil(t, params.Cursor)
	assert.Equal(t, "b", *params.Cursor)

	_, err = ParseParams("-1", "")
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = ParseParams("ten", "")
	assert.ErrorIs(t, err, ErrInvalidLimit)

	params, err = ParseParams("1000", "")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, params.Limit)

	_, err = ParseParams("1001", "")
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = ParseParams("9223372036854775807", "")
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestFetchRequestsOneExtraRow(t *testing.T) {
	var gotLimit int
	var gotAfter *string
	fetch := func(_ context.Context, limit int, after *string) ([]string, error) {
		gotLimit, gotAfter = limit, after
		return []string{"m", "n", "o"}, nil
	}

	cursor := "m"
	page, err := Fetch(context.Background(), Params{Limit: 2, Cursor: &cursor}, identity, fetch)
	require.NoError(t, err)
	assert.Equal(t, 3, gotLimit)
	assert.Equal(t, &cursor, gotAfter)
	assert.Equal(t, []string{"m", "n"}, page.Items)
	assert.Equal(t, "o", page.NextPageToken)
}

func TestFetchRejectsOutOfRangeLimitWithoutFetching(t *testing.T) {
	called := false
	fetch := func(context.Context, int, *string) ([]string, error) {
		called = true
		return nil, nil
	}
	for _, limit := range []int{-1, MaxLimit + 1, math.MaxInt} {
		_, err := Fetch(context.Background(), Params{Limit: limit}, identity, fetch)
		assert.ErrorIs(t, err, ErrInvalidLimit, "limit %d", limit)
	}
	assert.False(t, called)
}

func TestFetchPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Fetch(context.Background(), Params{Limit: 1}, identity, func(context.Context, int, *string) ([]string, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewPageEmpty(t *testing.T) {
	page := NewPage[string](nil, 10, identity)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextPageToken)
}
