package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/sharing"
)

const (
	tableVersionHeader = "Delta-Table-Version"
	ndjsonContentType  = "application/x-ndjson; charset=utf-8"
)

type queryRequest struct {
	PredicateHints     []string        `json:"predicateHints"`
	JSONPredicateHints json.RawMessage `json:"jsonPredicateHints"`
	LimitHint          *int32          `json:"limitHint" validate:"omitempty,gte=0"`
	Version            *int64          `json:"version" validate:"omitempty,gte=0"`
	Timestamp          *string         `json:"timestamp"`
}

func handleTableVersion(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	table, ok := lookupTable(deps, w, r)
	if !ok {
		return
	}

	var startingTimestamp *time.Time
	if raw := r.URL.Query().Get("startingTimestamp"); raw != "" {
		ts, err := sharing.ParseTimestamp(raw)
		if err != nil {
			writeFailure(deps, w, r, "parse startingTimestamp", err)
			return
		}
		startingTimestamp = &ts
	}

	version, err := deps.Sharing.Version(r.Context(), table.Location, startingTimestamp)
	if err != nil {
		writeFailure(deps, w, r, "resolve table version", err)
		return
	}
	w.Header().Set(tableVersionHeader, strconv.FormatInt(version, 10))
	w.WriteHeader(http.StatusOK)
}

func handleTableMetadata(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	table, ok := lookupTable(deps, w, r)
	if !ok {
		return
	}
	result, err := deps.Sharing.Metadata(r.Context(), table.Location)
	if err != nil {
		writeFailure(deps, w, r, "load table metadata", err)
		return
	}
	writeLines(deps, w, r, result.Version, result.Lines())
}

func handleTableQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, "invalid query request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, validationMessage(err))
		return
	}

	var timestamp *time.Time
	// A version wins; the timestamp is then not even parsed.
	if req.Version == nil && req.Timestamp != nil && strings.TrimSpace(*req.Timestamp) != "" {
		ts, err := sharing.ParseTimestamp(*req.Timestamp)
		if err != nil {
			writeFailure(deps, w, r, "parse timestamp", err)
			return
		}
		timestamp = &ts
	}

	table, ok := lookupTable(deps, w, r)
	if !ok {
		return
	}
	result, err := deps.Sharing.Query(r.Context(), sharing.QueryRequest{
		Location:           table.Location,
		PredicateHints:     req.PredicateHints,
		JSONPredicateHints: req.JSONPredicateHints,
		LimitHint:          req.LimitHint,
		Version:            req.Version,
		Timestamp:          timestamp,
	})
	if err != nil {
		writeFailure(deps, w, r, "query table", err)
		return
	}
	writeLines(deps, w, r, result.Version, result.Lines())
}

func lookupTable(deps Dependencies, w http.ResponseWriter, r *http.Request) (catalog.Table, bool) {
	if !catalogConfigured(deps, w, r) {
		return catalog.Table{}, false
	}
	if deps.Sharing == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, codeNotConfigured, "sharing dependency is not configured")
		return catalog.Table{}, false
	}
	table, err := deps.Catalog.GetTable(r.Context(), r.PathValue("share"), r.PathValue("schema"), r.PathValue("table"))
	if err != nil {
		writeFailure(deps, w, r, "get table", err)
		return catalog.Table{}, false
	}
	return table, true
}

func writeLines(deps Dependencies, w http.ResponseWriter, r *http.Request, version int64, lines []any) {
	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set(tableVersionHeader, strconv.FormatInt(version, 10))
	w.WriteHeader(http.StatusOK)
	if err := sharing.WriteLines(w, lines...); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "response stream interrupted",
			slog.Any("error", err),
		)
	}
}

// withTableLogAttrs tags logs emitted while serving a table route with the
// table's identity.
func withTableLogAttrs(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.ContextWithLogAttrs(r.Context(),
			slog.String("share", r.PathValue("share")),
			slog.String("schema", r.PathValue("schema")),
			slog.String("table", r.PathValue("table")),
		)
		next(w, r.WithContext(ctx))
	}
}
