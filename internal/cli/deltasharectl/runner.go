// Package deltasharectl is a command-line client for a Delta Sharing server.
package deltasharectl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const tableVersionHeader = "Delta-Table-Version"

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// Profile is a Delta Sharing recipient profile file.
type Profile struct {
	ShareCredentialsVersion int    `json:"shareCredentialsVersion"`
	Endpoint                string `json:"endpoint"`
	BearerToken             string `json:"bearerToken"`
	ExpirationTime          string `json:"expirationTime,omitempty"`
}

// httpError is returned for responses with a status >= 400.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }

type client struct {
	baseURL string
	token   string
	http    *http.Client
	stdout  io.Writer
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 on request failures and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var herr *httpError
		var uerr *usageError
		switch {
		case errors.As(err, &herr):
			_, _ = fmt.Fprintln(stderr, herr.Error())
			return 1
		case errors.As(err, &uerr):
			_, _ = fmt.Fprintln(stderr, uerr.Error())
			return 2
		case isUsageError(err):
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 2
		default:
			_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
			return 1
		}
	}
	return 0
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	var (
		baseURL     string
		token       string
		profilePath string
		timeout     time.Duration
	)
	c := &client{stdout: stdout}

	root := &cobra.Command{
		Use:           "deltasharectl",
		Short:         "Delta Sharing client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if profilePath != "" {
				profile, err := LoadProfile(profilePath)
				if err != nil {
					return &usageError{err: err}
				}
				if !cmd.Flags().Changed("base-url") {
					baseURL = profile.Endpoint
				}
				if !cmd.Flags().Changed("token") {
					token = profile.BearerToken
				}
			}
			c.baseURL = strings.TrimRight(baseURL, "/")
			c.token = strings.TrimSpace(token)
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "sharing server endpoint")
	flags.StringVar(&token, "token", defaults.Token, "bearer token")
	flags.StringVar(&profilePath, "profile", "", "recipient profile file; supplies endpoint and token")
	flags.DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	root.AddCommand(
		simpleCommand(c, "health", "Check server liveness", "/v1/health"),
		simpleCommand(c, "ready", "Check server readiness", "/v1/ready"),
		newSharesCommand(c),
		newSchemasCommand(c),
		newTablesCommand(c),
		newAllTablesCommand(c),
		newVersionCommand(c),
		newMetadataCommand(c),
		newQueryCommand(c),
		newAccountsCommand(c),
		newRegisterTableCommand(c),
	)
	return root
}

func simpleCommand(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printJSON(cmd.Context(), http.MethodGet, path, nil, nil)
		},
	}
}

type pageFlags struct {
	maxResults int
	pageToken  string
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.maxResults, "max-results", 0, "page size (server default when unset)")
	cmd.Flags().StringVar(&p.pageToken, "page-token", "", "token from a previous page")
}

func (p *pageFlags) query() url.Values {
	values := url.Values{}
	if p.maxResults > 0 {
		values.Set("maxResults", strconv.Itoa(p.maxResults))
	}
	if p.pageToken != "" {
		values.Set("pageToken", p.pageToken)
	}
	return values
}

func newSharesCommand(c *client) *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "shares [share]",
		Short: "List shares or show one share",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.printJSON(cmd.Context(), http.MethodGet, "/shares/"+url.PathEscape(args[0]), nil, nil)
			}
			return c.printJSON(cmd.Context(), http.MethodGet, "/shares", page.query(), nil)
		},
	}
	page.register(cmd)
	return cmd
}

func newSchemasCommand(c *client) *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "schemas <share>",
		Short: "List the schemas of a share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd.Context(), http.MethodGet, sharePath(args[0])+"/schemas", page.query(), nil)
		},
	}
	page.register(cmd)
	return cmd
}

func newTablesCommand(c *client) *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "tables <share> <schema>",
		Short: "List the tables of a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sharePath(args[0]) + "/schemas/" + url.PathEscape(args[1]) + "/tables"
			return c.printJSON(cmd.Context(), http.MethodGet, path, page.query(), nil)
		},
	}
	page.register(cmd)
	return cmd
}

func newAllTablesCommand(c *client) *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "all-tables <share>",
		Short: "List every table of a share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd.Context(), http.MethodGet, sharePath(args[0])+"/all-tables", page.query(), nil)
		},
	}
	page.register(cmd)
	return cmd
}

func newVersionCommand(c *client) *cobra.Command {
	var startingTimestamp string
	cmd := &cobra.Command{
		Use:   "version <share> <schema> <table>",
		Short: "Print the table version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := url.Values{}
			if startingTimestamp != "" {
				values.Set("startingTimestamp", startingTimestamp)
			}
			resp, _, err := c.do(cmd.Context(), http.MethodGet, tablePath(args)+"/version", values, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(c.stdout, resp.Header.Get(tableVersionHeader))
			return nil
		},
	}
	cmd.Flags().StringVar(&startingTimestamp, "starting-timestamp", "", "resolve the first version committed at or after this time")
	return cmd
}

func newMetadataCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <share> <schema> <table>",
		Short: "Print the table protocol and metadata lines",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printLines(cmd.Context(), http.MethodGet, tablePath(args)+"/metadata", nil)
		},
	}
}

type queryFlags struct {
	hints     []string
	jsonHints string
	limit     int32
	version   int64
	timestamp string
}

func newQueryCommand(c *client) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "query <share> <schema> <table>",
		Short: "Resolve the data files of a table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := q.body(cmd)
			if err != nil {
				return &usageError{err: err}
			}
			return c.printLines(cmd.Context(), http.MethodPost, tablePath(args)+"/query", body)
		},
	}
	cmd.Flags().StringArrayVar(&q.hints, "hint", nil, `SQL partition hint such as "date = '2024-01-01'" (repeatable)`)
	cmd.Flags().StringVar(&q.jsonHints, "json-hints", "", "JSON predicate tree, or @file to read it from a file")
	cmd.Flags().Int32Var(&q.limit, "limit", 0, "advisory row limit")
	cmd.Flags().Int64Var(&q.version, "version", 0, "table version to read")
	cmd.Flags().StringVar(&q.timestamp, "timestamp", "", "read the table as of this time")
	return cmd
}

func (q *queryFlags) body(cmd *cobra.Command) ([]byte, error) {
	payload := map[string]any{}
	if len(q.hints) > 0 {
		payload["predicateHints"] = q.hints
	}
	if q.jsonHints != "" {
		raw := []byte(q.jsonHints)
		if strings.HasPrefix(q.jsonHints, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(q.jsonHints, "@"))
			if err != nil {
				return nil, fmt.Errorf("read json hints: %w", err)
			}
			raw = data
		}
		if !json.Valid(raw) {
			return nil, errors.New("json hints are not valid JSON")
		}
		payload["jsonPredicateHints"] = json.RawMessage(raw)
	}
	if cmd.Flags().Changed("limit") {
		payload["limitHint"] = q.limit
	}
	if cmd.Flags().Changed("version") {
		payload["version"] = q.version
	}
	if q.timestamp != "" {
		payload["timestamp"] = q.timestamp
	}
	return json.Marshal(payload)
}

func newAccountsCommand(c *client) *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "accounts [account]",
		Short: "List recipient accounts or show one account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.printJSON(cmd.Context(), http.MethodGet, "/admin/accounts/"+url.PathEscape(args[0]), nil, nil)
			}
			return c.printJSON(cmd.Context(), http.MethodGet, "/admin/accounts", page.query(), nil)
		},
	}
	page.register(cmd)

	var email, namespace string
	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create <account>",
		Short: "Create a recipient account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{
				"name":      args[0],
				"email":     email,
				"namespace": namespace,
				"ttl":       int64(ttl / time.Second),
			})
			if err != nil {
				return err
			}
			return c.printJSON(cmd.Context(), http.MethodPost, "/admin/accounts", nil, body)
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&namespace, "namespace", "", "account namespace")
	create.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime of issued profile tokens")

	profile := &cobra.Command{
		Use:   "profile <account>",
		Short: "Issue a recipient profile for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(cmd.Context(), http.MethodGet, "/admin/accounts/"+url.PathEscape(args[0])+"/profile", nil, nil)
		},
	}
	cmd.AddCommand(create, profile)
	return cmd
}

func newRegisterTableCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "register-table <share> <schema> <table> <location>",
		Short: "Register a Delta table under a share and schema",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{
				"share":    args[0],
				"schema":   args[1],
				"table":    args[2],
				"location": args[3],
			})
			if err != nil {
				return err
			}
			return c.printJSON(cmd.Context(), http.MethodPost, "/admin/tables", nil, body)
		},
	}
}

// LoadProfile reads a recipient profile file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if strings.TrimSpace(profile.Endpoint) == "" {
		return Profile{}, errors.New("profile endpoint is required")
	}
	return profile, nil
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json, application/x-ndjson")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, nil, &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return resp, data, nil
}

func (c *client) printJSON(ctx context.Context, method, path string, query url.Values, body []byte) error {
	_, data, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if pretty, ok := prettyJSON(data); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(data) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(data))
	}
	return nil
}

func (c *client) printLines(ctx context.Context, method, path string, body []byte) error {
	resp, data, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if version := resp.Header.Get(tableVersionHeader); version != "" {
		_, _ = fmt.Fprintf(c.stdout, "# version %s\n", version)
	}
	_, _ = c.stdout.Write(bytes.TrimRight(data, "\n"))
	_, _ = fmt.Fprintln(c.stdout)
	return nil
}

func sharePath(share string) string {
	return "/shares/" + url.PathEscape(share)
}

func tablePath(args []string) string {
	return sharePath(args[0]) + "/schemas/" + url.PathEscape(args[1]) + "/tables/" + url.PathEscape(args[2])
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

// isUsageError recognizes argument and flag errors raised by cobra.
func isUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"unknown command", "unknown flag", "unknown shorthand", "accepts ", "requires ", "invalid argument", "flag needs an argument"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
