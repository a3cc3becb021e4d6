package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/config"
	"github.com/deltashare/deltashare/internal/delta"
	"github.com/deltashare/deltashare/internal/sharing"
)

type inMemoryCatalog struct {
	shares   []catalog.Share
	schemas  []catalog.Schema
	tables   []catalog.Table
	accounts []catalog.Account
}

func newInMemoryCatalog() *inMemoryCatalog {
	c := &inMemoryCatalog{}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		c.shares = append(c.shares, catalog.Share{ID: "id-" + name, Name: name})
	}
	c.schemas = []catalog.Schema{{Name: "eu", Share: "a"}, {Name: "us", Share: "a"}}
	c.tables = []catalog.Table{
		{ID: "t-1", Name: "orders", Schema: "eu", Share: "a", ShareID: "id-a", Location: "s3://lake/eu/orders"},
		{ID: "t-2", Name: "customers", Schema: "eu", Share: "a", ShareID: "id-a", Location: "s3://lake/eu/customers"},
		{ID: "t-3", Name: "orders", Schema: "us", Share: "a", ShareID: "id-a", Location: "s3://lake/us/orders"},
	}
	c.accounts = []catalog.Account{{ID: "acc-1", Name: "alice", Email: "alice@example.com", Namespace: "analytics", TTLSeconds: 3600}}
	return c
}

func (c *inMemoryCatalog) ListShares(_ context.Context, limit int, after *string) ([]catalog.Share, error) {
	return slicePage(c.shares, limit, after, func(s catalog.Share) string { return s.Name }), nil
}

func (c *inMemoryCatalog) GetShare(_ context.Context, name string) (catalog.Share, error) {
	for _, share := range c.shares {
		if share.Name == name {
			return share, nil
		}
	}
	return catalog.Share{}, catalog.ErrNotFound
}

func (c *inMemoryCatalog) ListSchemas(_ context.Context, share string, limit int, after *string) ([]catalog.Schema, error) {
	var out []catalog.Schema
	for _, schema := range c.schemas {
		if schema.Share == share {
			out = append(out, schema)
		}
	}
	return slicePage(out, limit, after, func(s catalog.Schema) string { return s.Name }), nil
}

func (c *inMemoryCatalog) ListTables(_ context.Context, share, schema string, limit int, after *string) ([]catalog.Table, error) {
	var out []catalog.Table
	for _, table := range c.tables {
		if table.Share == share && table.Schema == schema {
			out = append(out, table)
		}
	}
	return slicePage(out, limit, after, tableKey), nil
}

func (c *inMemoryCatalog) ListAllTables(_ context.Context, share string, limit int, after *string) ([]catalog.Table, error) {
	var out []catalog.Table
	for _, table := range c.tables {
		if table.Share == share {
			out = append(out, table)
		}
	}
	return slicePage(out, limit, after, catalog.AllTablesCursor), nil
}

func (c *inMemoryCatalog) GetTable(_ context.Context, share, schema, name string) (catalog.Table, error) {
	for _, table := range c.tables {
		if table.Share == share && table.Schema == schema && table.Name == name {
			return table, nil
		}
	}
	return catalog.Table{}, catalog.ErrNotFound
}

func (c *inMemoryCatalog) ListAccounts(_ context.Context, limit int, after *string) ([]catalog.Account, error) {
	return slicePage(c.accounts, limit, after, func(a catalog.Account) string { return a.Name }), nil
}

func (c *inMemoryCatalog) GetAccount(_ context.Context, name string) (catalog.Account, error) {
	for _, account := range c.accounts {
		if account.Name == name {
			return account, nil
		}
	}
	return catalog.Account{}, catalog.ErrNotFound
}

func (c *inMemoryCatalog) CreateAccount(_ context.Context, in catalog.CreateAccountInput) (catalog.Account, error) {
	if _, err := c.GetAccount(context.Background(), in.Name); err == nil {
		return catalog.Account{}, catalog.ErrAlreadyExists
	}
	account := catalog.Account{ID: "acc-new", Name: in.Name, Email: in.Email, Namespace: in.Namespace, TTLSeconds: in.TTLSeconds}
	c.accounts = append(c.accounts, account)
	return account, nil
}

func (c *inMemoryCatalog) RegisterTable(_ context.Context, in catalog.RegisterTableInput) (catalog.Table, error) {
	table := catalog.Table{ID: "t-new", Name: in.Table, Schema: in.Schema, Share: in.Share, Location: in.Location}
	c.tables = append(c.tables, table)
	return table, nil
}

// slicePage returns what a keyset query would: up to limit rows ordered by
// key, starting at after.
func slicePage[T any](items []T, limit int, after *string, key func(T) string) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) < key(sorted[j]) })
	out := make([]T, 0, limit)
	for _, item := range sorted {
		if len(out) == limit {
			break
		}
		if after != nil && key(item) < *after {
			continue
		}
		out = append(out, item)
	}
	return out
}

type fakeSharing struct {
	lastQuery sharing.QueryRequest
	err       error
}

func (f *fakeSharing) Query(_ context.Context, req sharing.QueryRequest) (*sharing.QueryResult, error) {
	f.lastQuery = req
	if f.err != nil {
		return nil, f.err
	}
	return &sharing.QueryResult{
		Version:  4,
		Protocol: sharing.ProtocolLine{Protocol: sharing.ProtocolDetail{MinReaderVersion: 1}},
		Metadata: sharing.MetadataLine{MetaData: sharing.MetadataDetail{ID: "m", Format: sharing.FormatDetail{Provider: "parquet"}, PartitionColumns: []string{}, Configuration: map[string]string{}}},
		Files: []sharing.FileLine{{File: sharing.FileDetail{
			URL:                 "https://signed.example/part-0.parquet",
			ID:                  "f0",
			PartitionValues:     map[string]string{},
			Size:                10,
			ExpirationTimestamp: 1,
		}}},
	}, nil
}

func (f *fakeSharing) Metadata(_ context.Context, location string) (*sharing.MetadataResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sharing.MetadataResult{
		Version:  4,
		Protocol: sharing.ProtocolLine{Protocol: sharing.ProtocolDetail{MinReaderVersion: 1}},
		Metadata: sharing.MetadataLine{MetaData: sharing.MetadataDetail{ID: location}},
	}, nil
}

func (f *fakeSharing) Version(_ context.Context, _ string, startingTimestamp *time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if startingTimestamp != nil {
		return 2, nil
	}
	return 4, nil
}

func newTestHandler(t *testing.T, svc *fakeSharing) http.Handler {
	t.Helper()
	cfg, err := config.Load("deltashare-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, Dependencies{Catalog: newInMemoryCatalog(), Sharing: svc})
}

func doRequest(h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, bytes.NewReader([]byte(body))))
	return rr
}

func decodePage(t *testing.T, rr *httptest.ResponseRecorder) (names []string, token string) {
	t.Helper()
	var page struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v body=%s", err, rr.Body.String())
	}
	for _, item := range page.Items {
		names = append(names, item.Name)
	}
	return names, page.NextPageToken
}

func TestListSharesPaginatesToTheEnd(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	var seen []string
	target := "/shares?maxResults=2"
	for range 10 {
		rr := doRequest(h, http.MethodGet, target, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
		}
		names, token := decodePage(t, rr)
		seen = append(seen, names...)
		if token == "" {
			break
		}
		target = "/shares?maxResults=2&pageToken=" + token
	}
	if strings.Join(seen, ",") != "a,b,c,d,e" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestListSharesRejectsInvalidMaxResults(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})
	for _, raw := range []string{"-1", "ten", "1001", "9223372036854775807"} {
		rr := doRequest(h, http.MethodGet, "/shares?maxResults="+raw, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("maxResults=%s status = %d", raw, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), codeInvalidParameter) {
			t.Fatalf("body = %s", rr.Body.String())
		}
	}
}

func TestGetShareAndMissingShare(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	rr := doRequest(h, http.MethodGet, "/shares/a", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"name":"a"`) {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}

	for _, target := range []string{"/shares/zzz", "/shares/zzz/schemas", "/shares/zzz/all-tables", "/shares/zzz/schemas/eu/tables"} {
		rr := doRequest(h, http.MethodGet, target, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d", target, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), codeNotFound) {
			t.Fatalf("%s body = %s", target, rr.Body.String())
		}
	}
}

func TestListSchemasAndTables(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	names, token := decodePage(t, doRequest(h, http.MethodGet, "/shares/a/schemas", ""))
	if strings.Join(names, ",") != "eu,us" || token != "" {
		t.Fatalf("schemas = %v token = %q", names, token)
	}

	names, _ = decodePage(t, doRequest(h, http.MethodGet, "/shares/a/schemas/eu/tables", ""))
	if strings.Join(names, ",") != "customers,orders" {
		t.Fatalf("tables = %v", names)
	}

	rr := doRequest(h, http.MethodGet, "/shares/a/all-tables?maxResults=10", "")
	names, _ = decodePage(t, rr)
	if len(names) != 3 {
		t.Fatalf("all tables = %v", names)
	}
	if !strings.Contains(rr.Body.String(), `"shareId":"id-a"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestListAllTablesPagesThroughRepeatedNames(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	type tableRef struct {
		Name   string `json:"name"`
		Schema string `json:"schema"`
	}
	var visited []string
	target := "/shares/a/all-tables?maxResults=1"
	for calls := 0; ; calls++ {
		if calls > 5 {
			t.Fatalf("paging did not terminate, visited %v", visited)
		}
		rr := doRequest(h, http.MethodGet, target, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
		}
		var page struct {
			Items         []tableRef `json:"items"`
			NextPageToken string     `json:"nextPageToken"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		for _, item := range page.Items {
			visited = append(visited, item.Schema+"."+item.Name)
		}
		if page.NextPageToken == "" {
			break
		}
		target = "/shares/a/all-tables?maxResults=1&pageToken=" + url.QueryEscape(page.NextPageToken)
	}

	if got := strings.Join(visited, ","); got != "eu.customers,eu.orders,us.orders" {
		t.Fatalf("visited = %s", got)
	}
}

func TestTableVersionHeader(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	rr := doRequest(h, http.MethodGet, "/shares/a/schemas/eu/tables/orders/version", "")
	if rr.Code != http.StatusOK || rr.Header().Get(tableVersionHeader) != "4" {
		t.Fatalf("status = %d header = %q", rr.Code, rr.Header().Get(tableVersionHeader))
	}

	rr = doRequest(h, http.MethodHead, "/shares/a/schemas/eu/tables/orders/version?startingTimestamp=2024-01-01T00:00:00Z", "")
	if rr.Code != http.StatusOK || rr.Header().Get(tableVersionHeader) != "2" {
		t.Fatalf("HEAD status = %d header = %q", rr.Code, rr.Header().Get(tableVersionHeader))
	}

	rr = doRequest(h, http.MethodGet, "/shares/a/schemas/eu/tables/orders/version?startingTimestamp=yesterday", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamp status = %d", rr.Code)
	}

	rr = doRequest(h, http.MethodGet, "/shares/a/schemas/eu/tables/missing/version", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing table status = %d", rr.Code)
	}
}

func TestTableMetadataStreamsLines(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})

	rr := doRequest(h, http.MethodGet, "/shares/a/schemas/eu/tables/orders/metadata", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/x-ndjson") {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "s3://lake/eu/orders") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestTableQueryStreamsFiles(t *testing.T) {
	svc := &fakeSharing{}
	h := newTestHandler(t, svc)

	body := `{"predicateHints":["date = '2024-01-01'"],"limitHint":100,"version":3,"timestamp":"not a timestamp"}`
	rr := doRequest(h, http.MethodPost, "/shares/a/schemas/eu/tables/orders/query", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(tableVersionHeader) != "4" {
		t.Fatalf("header = %q", rr.Header().Get(tableVersionHeader))
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[2], `{"file":`) {
		t.Fatalf("lines = %v", lines)
	}
	if svc.lastQuery.Version == nil || *svc.lastQuery.Version != 3 {
		t.Fatalf("version = %v", svc.lastQuery.Version)
	}
	if svc.lastQuery.Timestamp != nil {
		t.Fatal("timestamp must be ignored when version is set")
	}
	if svc.lastQuery.Location != "s3://lake/eu/orders" || len(svc.lastQuery.PredicateHints) != 1 {
		t.Fatalf("query = %+v", svc.lastQuery)
	}
}

func TestTableQueryValidation(t *testing.T) {
	h := newTestHandler(t, &fakeSharing{})
	target := "/shares/a/schemas/eu/tables/orders/query"

	cases := map[string]string{
		"malformed json":   `{"predicateHints":`,
		"negative version": `{"version":-1}`,
		"bad timestamp":    `{"timestamp":"31/12/2024"}`,
	}
	for name, body := range cases {
		rr := doRequest(h, http.MethodPost, target, body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d body=%s", name, rr.Code, rr.Body.String())
		}
	}
}

func TestTableQueryMapsResolutionErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: delta.ErrVersionNotFound, want: http.StatusNotFound},
		{err: delta.ErrTableNotFound, want: http.StatusNotFound},
		{err: delta.ErrCorruptLog, want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		h := newTestHandler(t, &fakeSharing{err: tc.err})
		rr := doRequest(h, http.MethodPost, "/shares/a/schemas/eu/tables/orders/query", `{}`)
		if rr.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rr.Code, tc.want)
		}
	}
}

func TestTableQueryTimestampIsParsed(t *testing.T) {
	svc := &fakeSharing{}
	h := newTestHandler(t, svc)

	rr := doRequest(h, http.MethodPost, "/shares/a/schemas/eu/tables/orders/query", `{"timestamp":"2024/03/01 12:00:00"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if svc.lastQuery.Timestamp == nil || !svc.lastQuery.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", svc.lastQuery.Timestamp)
	}
}
