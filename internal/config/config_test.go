package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("deltashare-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Sharing.URLTTL != time.Hour {
		t.Fatalf("Sharing.URLTTL = %s", cfg.Sharing.URLTTL)
	}
	if cfg.Sharing.SignConcurrency != 16 {
		t.Fatalf("Sharing.SignConcurrency = %d", cfg.Sharing.SignConcurrency)
	}
	if cfg.Sharing.RecipientRole != "recipient" || cfg.Sharing.AdminRole != "admin" {
		t.Fatalf("Sharing roles = %q/%q", cfg.Sharing.RecipientRole, cfg.Sharing.AdminRole)
	}
	if cfg.GCS.Enabled {
		t.Fatal("GCS.Enabled should default to false")
	}
	if cfg.GCS.Endpoint != "https://storage.googleapis.com" {
		t.Fatalf("GCS.Endpoint = %q", cfg.GCS.Endpoint)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"DELTASHARE_PROFILE": "prod"})
	cfg, err := Load("deltashare-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.Endpoint != "s3.amazonaws.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.AccessKeyID != "" {
		t.Fatal("prod must not carry development credentials")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DELTASHARE_PROFILE":                      "test",
		"DELTASHARE_HTTP_ADDR":                    ":9999",
		"DELTASHARE_HTTP_READ_TIMEOUT":            "2s",
		"DELTASHARE_HTTP_WRITE_TIMEOUT":           "3s",
		"DELTASHARE_LOG_LEVEL":                    "error",
		"DELTASHARE_AUTH_REQUIRED":                "true",
		"DELTASHARE_AUTH_STATIC_TOKENS":           "tok-1:alice:recipient",
		"DELTASHARE_AUTH_JWT_SECRET":              "jwt-secret",
		"DELTASHARE_AUTH_JWT_ISSUER":              "deltashare",
		"DELTASHARE_CATALOG_DSN":                  "postgres://example",
		"DELTASHARE_CATALOG_MAX_OPEN_CONNS":       "42",
		"DELTASHARE_CATALOG_MAX_IDLE_CONNS":       "17",
		"DELTASHARE_SERVICE_NAME":                 "deltashare-custom",
		"DELTASHARE_OBJECTSTORE_ENDPOINT":         "s3.example.com",
		"DELTASHARE_OBJECTSTORE_REGION":           "us-west-2",
		"DELTASHARE_OBJECTSTORE_ACCESS_KEY":       "abc",
		"DELTASHARE_OBJECTSTORE_SECRET_KEY":       "def",
		"DELTASHARE_OBJECTSTORE_SESSION_TOKEN":    "session",
		"DELTASHARE_OBJECTSTORE_USE_SSL":          "true",
		"DELTASHARE_GCS_ENABLED":                  "true",
		"DELTASHARE_GCS_HMAC_ACCESS_KEY":          "GOOG1",
		"DELTASHARE_GCS_HMAC_SECRET":              "hmac-secret",
		"DELTASHARE_GCS_SERVICE_ACCOUNT_FILE":     "/etc/deltashare/sa.json",
		"DELTASHARE_AZURE_ACCOUNT_NAME":           "acct",
		"DELTASHARE_AZURE_ACCOUNT_KEY":            "a2V5",
		"DELTASHARE_SHARING_URL_TTL":              "15m",
		"DELTASHARE_SHARING_SIGN_CONCURRENCY":     "4",
		"DELTASHARE_SHARING_LOG_READ_CONCURRENCY": "3",
		"DELTASHARE_SHARING_RECIPIENT_ROLE":       "reader",
		"DELTASHARE_SHARING_PUBLIC_ENDPOINT":      "https://share.example.com/delta-sharing",
	})
	cfg, err := Load("deltashare-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sharing.PublicEndpoint != "https://share.example.com/delta-sharing" {
		t.Fatalf("Sharing.PublicEndpoint = %q", cfg.Sharing.PublicEndpoint)
	}
	if cfg.Service.Name != "deltashare-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticTokens != "tok-1:alice:recipient" {
		t.Fatalf("StaticTokens = %q", cfg.Auth.StaticTokens)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" || cfg.Auth.JWTIssuer != "deltashare" {
		t.Fatalf("JWT = %q/%q", cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	}
	if cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}
	if cfg.Catalog.MaxOpenConns != 42 || cfg.Catalog.MaxIdleConns != 17 {
		t.Fatalf("Catalog conns = %d/%d", cfg.Catalog.MaxOpenConns, cfg.Catalog.MaxIdleConns)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" || cfg.ObjectStore.Region != "us-west-2" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.SessionToken != "session" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.GCS.Enabled || cfg.GCS.HMACAccessKey != "GOOG1" || cfg.GCS.HMACSecret != "hmac-secret" {
		t.Fatalf("GCS = %+v", cfg.GCS)
	}
	if cfg.GCS.ServiceAccountFile != "/etc/deltashare/sa.json" {
		t.Fatalf("GCS.ServiceAccountFile = %q", cfg.GCS.ServiceAccountFile)
	}
	if cfg.Azure.AccountName != "acct" || cfg.Azure.AccountKey != "a2V5" {
		t.Fatalf("Azure = %+v", cfg.Azure)
	}
	if cfg.Sharing.URLTTL != 15*time.Minute {
		t.Fatalf("Sharing.URLTTL = %s", cfg.Sharing.URLTTL)
	}
	if cfg.Sharing.SignConcurrency != 4 || cfg.Sharing.LogReadConcurrency != 3 {
		t.Fatalf("Sharing concurrency = %d/%d", cfg.Sharing.SignConcurrency, cfg.Sharing.LogReadConcurrency)
	}
	if cfg.Sharing.RecipientRole != "reader" {
		t.Fatalf("Sharing.RecipientRole = %q", cfg.Sharing.RecipientRole)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"DELTASHARE_PROFILE": "oops"},
		{"DELTASHARE_HTTP_READ_TIMEOUT": "NaN"},
		{"DELTASHARE_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"DELTASHARE_SHARING_URL_TTL": "soon"},
		{"DELTASHARE_SHARING_URL_TTL": "0s"},
		{"DELTASHARE_SHARING_SIGN_CONCURRENCY": "0"},
		{"DELTASHARE_SHARING_LOG_READ_CONCURRENCY": "-1"},
		{"DELTASHARE_GCS_ENABLED": "maybe"},
		{"DELTASHARE_AUTH_REQUIRED": "not-bool"},
		{"DELTASHARE_LOG_LEVEL": "verbose"},
		{"DELTASHARE_HTTP_ADDR": " "},
	}
	for _, env := range tests {
		_, err := Load("deltashare-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
