package api

import (
	"context"
	"net/http"

	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/pagination"
)

type shareItem struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type schemaItem struct {
	Name  string `json:"name"`
	Share string `json:"share"`
}

type tableItem struct {
	Name    string `json:"name"`
	Schema  string `json:"schema"`
	Share   string `json:"share"`
	ShareID string `json:"shareId,omitempty"`
	ID      string `json:"id,omitempty"`
}

func toShareItem(share catalog.Share) shareItem {
	return shareItem{Name: share.Name, ID: share.ID}
}

func toSchemaItem(schema catalog.Schema) schemaItem {
	return schemaItem{Name: schema.Name, Share: schema.Share}
}

func toTableItem(table catalog.Table) tableItem {
	return tableItem{Name: table.Name, Schema: table.Schema, Share: table.Share, ShareID: table.ShareID, ID: table.ID}
}

func handleListShares(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !catalogConfigured(deps, w, r) {
		return
	}
	params, ok := pageParams(deps, w, r)
	if !ok {
		return
	}
	page, err := pagination.Fetch(r.Context(), params, func(s catalog.Share) string { return s.Name }, deps.Catalog.ListShares)
	if err != nil {
		writeFailure(deps, w, r, "list shares", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, toShareItem))
}

func handleGetShare(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !catalogConfigured(deps, w, r) {
		return
	}
	share, err := deps.Catalog.GetShare(r.Context(), r.PathValue("share"))
	if err != nil {
		writeFailure(deps, w, r, "get share", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"share": toShareItem(share)})
}

func handleListSchemas(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !catalogConfigured(deps, w, r) {
		return
	}
	params, ok := pageParams(deps, w, r)
	if !ok {
		return
	}
	share := r.PathValue("share")
	if _, err := deps.Catalog.GetShare(r.Context(), share); err != nil {
		writeFailure(deps, w, r, "get share", err)
		return
	}
	page, err := pagination.Fetch(r.Context(), params, func(s catalog.Schema) string { return s.Name },
		func(ctx context.Context, limit int, after *string) ([]catalog.Schema, error) {
			return deps.Catalog.ListSchemas(ctx, share, limit, after)
		})
	if err != nil {
		writeFailure(deps, w, r, "list schemas", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, toSchemaItem))
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !catalogConfigured(deps, w, r) {
		return
	}
	params, ok := pageParams(deps, w, r)
	if !ok {
		return
	}
	share, schema := r.PathValue("share"), r.PathValue("schema")
	if _, err := deps.Catalog.GetShare(r.Context(), share); err != nil {
		writeFailure(deps, w, r, "get share", err)
		return
	}
	page, err := pagination.Fetch(r.Context(), params, tableKey,
		func(ctx context.Context, limit int, after *string) ([]catalog.Table, error) {
			return deps.Catalog.ListTables(ctx, share, schema, limit, after)
		})
	if err != nil {
		writeFailure(deps, w, r, "list tables", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, toTableItem))
}

func handleListAllTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !catalogConfigured(deps, w, r) {
		return
	}
	params, ok := pageParams(deps, w, r)
	if !ok {
		return
	}
	share := r.PathValue("share")
	if _, err := deps.Catalog.GetShare(r.Context(), share); err != nil {
		writeFailure(deps, w, r, "get share", err)
		return
	}
	page, err := pagination.Fetch(r.Context(), params, catalog.AllTablesCursor,
		func(ctx context.Context, limit int, after *string) ([]catalog.Table, error) {
			return deps.Catalog.ListAllTables(ctx, share, limit, after)
		})
	if err != nil {
		writeFailure(deps, w, r, "list all tables", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, toTableItem))
}

func tableKey(t catalog.Table) string {
	return t.Name
}

func catalogConfigured(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, codeNotConfigured, "catalog dependency is not configured")
		return false
	}
	return true
}

func pageParams(deps Dependencies, w http.ResponseWriter, r *http.Request) (pagination.Params, bool) {
	query := r.URL.Query()
	params, err := pagination.ParseParams(query.Get("maxResults"), query.Get("pageToken"))
	if err != nil {
		writeFailure(deps, w, r, "parse page", err)
		return pagination.Params{}, false
	}
	return params, true
}

func mapPage[T, U any](page pagination.Page[T], convert func(T) U) pagination.Page[U] {
	items := make([]U, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pagination.Page[U]{Items: items, NextPageToken: page.NextPageToken}
}
