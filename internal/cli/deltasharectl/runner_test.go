package deltasharectl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func recordingServer(t *testing.T, status int, header http.Header, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	got := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*got = recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		}
		for key, values := range header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunListSharesCommand(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, nil, `{"items":[{"name":"sales"}],"nextPageToken":"tax"}`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--token", "t1",
		"shares", "--max-results", "1",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodGet || got.path != "/shares" || got.query != "maxResults=1" {
		t.Fatalf("request = %s %s?%s", got.method, got.path, got.query)
	}
	if got.auth != "Bearer t1" {
		t.Fatalf("authorization = %q", got.auth)
	}
	if !strings.Contains(stdout.String(), `"nextPageToken": "tax"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunTablesCommandsBuildPaths(t *testing.T) {
	tests := []struct {
		args []string
		path string
	}{
		{args: []string{"shares", "sales"}, path: "/shares/sales"},
		{args: []string{"schemas", "sales"}, path: "/shares/sales/schemas"},
		{args: []string{"tables", "sales", "eu"}, path: "/shares/sales/schemas/eu/tables"},
		{args: []string{"all-tables", "sales"}, path: "/shares/sales/all-tables"},
		{args: []string{"metadata", "sales", "eu", "orders"}, path: "/shares/sales/schemas/eu/tables/orders/metadata"},
		{args: []string{"accounts", "alice"}, path: "/admin/accounts/alice"},
		{args: []string{"accounts", "profile", "alice"}, path: "/admin/accounts/alice/profile"},
	}
	for _, tc := range tests {
		srv, got := recordingServer(t, http.StatusOK, nil, `{}`)
		code := Run(context.Background(), append([]string{"--base-url", srv.URL}, tc.args...), Options{})
		if code != 0 {
			t.Fatalf("%v: exit code = %d", tc.args, code)
		}
		if got.path != tc.path {
			t.Fatalf("%v: path = %s, want %s", tc.args, got.path, tc.path)
		}
	}
}

func TestRunVersionPrintsHeader(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, http.Header{tableVersionHeader: []string{"12"}}, "")

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"version", "sales", "eu", "orders", "--starting-timestamp", "2024-01-01T00:00:00Z",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/shares/sales/schemas/eu/tables/orders/version" || !strings.Contains(got.query, "startingTimestamp=") {
		t.Fatalf("request = %s?%s", got.path, got.query)
	}
	if strings.TrimSpace(stdout.String()) != "12" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunQuerySendsHints(t *testing.T) {
	lines := `{"protocol":{"minReaderVersion":1}}` + "\n" + `{"file":{"url":"https://x"}}` + "\n"
	srv, got := recordingServer(t, http.StatusOK, http.Header{tableVersionHeader: []string{"3"}}, lines)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"query", "sales", "eu", "orders",
		"--hint", "date = '2024-01-01'",
		"--hint", "region = 'eu'",
		"--json-hints", `{"op":"isNull","children":[{"op":"column","name":"x","valueType":"int"}]}`,
		"--version", "0",
		"--limit", "10",
	}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodPost || got.path != "/shares/sales/schemas/eu/tables/orders/query" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(got.body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if hints, _ := body["predicateHints"].([]any); len(hints) != 2 {
		t.Fatalf("predicateHints = %v", body["predicateHints"])
	}
	if body["version"] != float64(0) || body["limitHint"] != float64(10) {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["jsonPredicateHints"].(map[string]any); !ok {
		t.Fatalf("jsonPredicateHints = %v", body["jsonPredicateHints"])
	}
	if _, ok := body["timestamp"]; ok {
		t.Fatal("timestamp must be omitted when unset")
	}
	if !strings.HasPrefix(stdout.String(), "# version 3\n") || !strings.Contains(stdout.String(), `"file"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunQueryRejectsInvalidJSONHints(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"query", "s", "e", "t", "--json-hints", "{nope"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunCreateAccountAndRegisterTable(t *testing.T) {
	srv, got := recordingServer(t, http.StatusCreated, nil, `{"account":{"name":"alice"}}`)

	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"accounts", "create", "alice", "--email", "alice@example.com", "--namespace", "bi", "--ttl", "1h",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/admin/accounts" || !strings.Contains(got.body, `"ttl":3600`) {
		t.Fatalf("request = %s %s %s", got.method, got.path, got.body)
	}

	code = Run(context.Background(), []string{
		"--base-url", srv.URL,
		"register-table", "sales", "eu", "orders", "s3://lake/orders",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/admin/tables" || !strings.Contains(got.body, `"location":"s3://lake/orders"`) {
		t.Fatalf("request = %s %s", got.path, got.body)
	}
}

func TestRunUsesProfileFile(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, nil, `{"status":"ok"}`)

	path := filepath.Join(t.TempDir(), "profile.share")
	profile := `{"shareCredentialsVersion":1,"endpoint":"` + srv.URL + `","bearerToken":"from-profile"}`
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	code := Run(context.Background(), []string{"--profile", path, "health"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/v1/health" || got.auth != "Bearer from-profile" {
		t.Fatalf("request = %s auth=%q", got.path, got.auth)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusForbidden, nil, `{"errorCode":"FORBIDDEN"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "accounts"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"tables", "only-share"}, {"shares", "--bogus"}} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("%v: exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("%v: expected usage output", args)
		}
	}
}
