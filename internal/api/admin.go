package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/auth"
	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/pagination"
)

const shareCredentialsVersion = 1

type accountAdminCatalog interface {
	ListAccounts(ctx context.Context, limit int, after *string) ([]catalog.Account, error)
	GetAccount(ctx context.Context, name string) (catalog.Account, error)
	CreateAccount(ctx context.Context, in catalog.CreateAccountInput) (catalog.Account, error)
	RegisterTable(ctx context.Context, in catalog.RegisterTableInput) (catalog.Table, error)
}

type accountItem struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Namespace string `json:"namespace"`
	TTL       int64  `json:"ttl"`
	ID        string `json:"id,omitempty"`
}

type accountCreateRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email"`
	Namespace string `json:"namespace" validate:"required,max=255"`
	TTL       int64  `json:"ttl" validate:"gte=0"`
}

type tableRegisterRequest struct {
	Share    string `json:"share" validate:"required,max=255"`
	Schema   string `json:"schema" validate:"required,max=255"`
	Table    string `json:"table" validate:"required,max=255"`
	Location string `json:"location" validate:"required,uri"`
}

type profileResponse struct {
	ShareCredentialsVersion int    `json:"shareCredentialsVersion"`
	Endpoint                string `json:"endpoint"`
	BearerToken             string `json:"bearerToken"`
	ExpirationTime          string `json:"expirationTime"`
}

func toAccountItem(account catalog.Account) accountItem {
	return accountItem{
		Name:      account.Name,
		Email:     account.Email,
		Namespace: account.Namespace,
		TTL:       account.TTLSeconds,
		ID:        account.ID,
	}
}

func adminCatalog(deps Dependencies, w http.ResponseWriter, r *http.Request) (accountAdminCatalog, bool) {
	repo, ok := deps.Catalog.(accountAdminCatalog)
	if !ok || deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, codeNotConfigured, "admin operations are not configured")
		return nil, false
	}
	return repo, true
}

func handleListAccounts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	repo, ok := adminCatalog(deps, w, r)
	if !ok {
		return
	}
	params, ok := pageParams(deps, w, r)
	if !ok {
		return
	}
	page, err := pagination.Fetch(r.Context(), params, func(a catalog.Account) string { return a.Name }, repo.ListAccounts)
	if err != nil {
		writeFailure(deps, w, r, "list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, toAccountItem))
}

func handleGetAccount(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	repo, ok := adminCatalog(deps, w, r)
	if !ok {
		return
	}
	account, err := repo.GetAccount(r.Context(), r.PathValue("account"))
	if err != nil {
		writeFailure(deps, w, r, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": toAccountItem(account)})
}

func handleCreateAccount(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	repo, ok := adminCatalog(deps, w, r)
	if !ok {
		return
	}
	var req accountCreateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, "invalid account request body: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, validationMessage(err))
		return
	}
	account, err := repo.CreateAccount(r.Context(), catalog.CreateAccountInput{
		Name:       req.Name,
		Email:      req.Email,
		Namespace:  req.Namespace,
		TTLSeconds: req.TTL,
	})
	if err != nil {
		writeFailure(deps, w, r, "create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account": toAccountItem(account)})
}

// handleAccountProfile issues a bearer token for the account and returns it
// as a Delta Sharing profile file.
func handleAccountProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	repo, ok := adminCatalog(deps, w, r)
	if !ok {
		return
	}
	if deps.Tokens == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, codeNotConfigured, "token issuing is not configured")
		return
	}
	account, err := repo.GetAccount(r.Context(), r.PathValue("account"))
	if err != nil {
		writeFailure(deps, w, r, "get account", err)
		return
	}
	if account.TTLSeconds <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, "account ttl does not allow issuing tokens")
		return
	}
	token, expiresAt, err := deps.Tokens.Issue(auth.Claims{
		Name:      account.Name,
		Email:     account.Email,
		Namespace: account.Namespace,
		Role:      deps.ProfileRole,
	}, time.Duration(account.TTLSeconds)*time.Second)
	if err != nil {
		writeFailure(deps, w, r, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ShareCredentialsVersion: shareCredentialsVersion,
		Endpoint:                deps.PublicEndpoint,
		BearerToken:             token,
		ExpirationTime:          expiresAt.UTC().Format(time.RFC3339),
	})
}

func handleRegisterTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	repo, ok := adminCatalog(deps, w, r)
	if !ok {
		return
	}
	var req tableRegisterRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, "invalid table request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, validationMessage(err))
		return
	}
	createdBy := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		createdBy = identity.Subject
	}
	table, err := repo.RegisterTable(r.Context(), catalog.RegisterTableInput{
		Share:     req.Share,
		Schema:    req.Schema,
		Table:     req.Table,
		Location:  req.Location,
		CreatedBy: createdBy,
	})
	if err != nil {
		writeFailure(deps, w, r, "register table", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"table": toTableItem(table)})
}
