package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deltashare/deltashare/internal/api"
	"github.com/deltashare/deltashare/internal/auth"
	catalogpostgres "github.com/deltashare/deltashare/internal/catalog/postgres"
	"github.com/deltashare/deltashare/internal/config"
	"github.com/deltashare/deltashare/internal/delta"
	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/sharing"
	"github.com/deltashare/deltashare/internal/signer"
	"github.com/deltashare/deltashare/internal/storage"
	azurestore "github.com/deltashare/deltashare/internal/storage/azure"
	s3store "github.com/deltashare/deltashare/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("deltashare-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		ApplicationName: cfg.Service.Name,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()
	catalogRepo := catalogpostgres.NewRepository(catalogDB)

	openers, signers, err := newStorage(cfg)
	if err != nil {
		logger.Error("failed to initialize object storage", slog.Any("error", err))
		os.Exit(1)
	}
	sharingService := &sharing.Service{
		Resolver:        &sharing.Resolver{Tables: delta.NewLogStore(openers, cfg.Sharing.LogReadConcurrency)},
		Signer:          signers,
		Logger:          logger,
		SignConcurrency: cfg.Sharing.SignConcurrency,
	}

	deps := api.Dependencies{
		Logger:         logger,
		Catalog:        catalogRepo,
		Sharing:        sharingService,
		PublicEndpoint: cfg.Sharing.PublicEndpoint,
		Readiness: api.CombineReadinessChecks(
			api.CheckCatalogDSN(cfg),
			catalogRepo.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}

	var validators auth.Chain
	if cfg.Auth.JWTSecret != "" {
		jwtValidator, err := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			logger.Error("failed to initialize token issuer", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Tokens = jwtValidator
		validators = append(validators, jwtValidator)
	}
	if cfg.Auth.Required {
		static, err := auth.NewStaticTokenValidator(cfg.Auth.StaticTokens)
		if err != nil {
			logger.Error("failed to parse static auth tokens", slog.Any("error", err))
			os.Exit(1)
		}
		if !static.Empty() {
			validators = append(auth.Chain{static}, validators...)
		}
		if len(validators) == 0 {
			logger.Error("auth required but neither static tokens nor a jwt secret are configured")
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validators)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// newStorage wires an object store opener and a URL signer per configured
// cloud platform. S3 is always configured; GCS and Azure are optional.
func newStorage(cfg config.Config) (storage.Router, signer.Registry, error) {
	openers := storage.Router{}
	signers := signer.Registry{}
	ttl := cfg.Sharing.URLTTL

	s3Opener, err := s3store.NewOpener(s3store.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		SessionToken:    cfg.ObjectStore.SessionToken,
		UseSSL:          cfg.ObjectStore.UseSSL,
	})
	if err != nil {
		return nil, nil, err
	}
	awsSigner, err := signer.NewAWS(s3Opener, ttl)
	if err != nil {
		return nil, nil, err
	}
	openers[storage.PlatformAWS] = s3Opener
	signers[storage.PlatformAWS] = awsSigner

	if cfg.GCS.Enabled {
		gcsOpener, err := s3store.NewOpener(s3store.Config{
			Endpoint:        cfg.GCS.Endpoint,
			Region:          "auto",
			AccessKeyID:     cfg.GCS.HMACAccessKey,
			SecretAccessKey: cfg.GCS.HMACSecret,
			UseSSL:          true,
		})
		if err != nil {
			return nil, nil, err
		}
		openers[storage.PlatformGCP] = gcsOpener
		if cfg.GCS.ServiceAccountFile != "" {
			gcpSigner, err := signer.NewGCPFromFile(cfg.GCS.ServiceAccountFile, ttl)
			if err != nil {
				return nil, nil, err
			}
			signers[storage.PlatformGCP] = gcpSigner
		} else {
			// HMAC keys sign V4 URLs against the interoperability endpoint.
			hmacSigner, err := signer.NewAWS(gcsOpener, ttl)
			if err != nil {
				return nil, nil, err
			}
			signers[storage.PlatformGCP] = hmacSigner
		}
	}

	if cfg.Azure.AccountName != "" {
		azureOpener, err := azurestore.NewOpener(azurestore.Config{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  cfg.Azure.AccountKey,
			ServiceURL:  cfg.Azure.ServiceURL,
		})
		if err != nil {
			return nil, nil, err
		}
		azureSigner, err := signer.NewAzure(cfg.Azure.AccountName, cfg.Azure.AccountKey, ttl)
		if err != nil {
			return nil, nil, err
		}
		openers[storage.PlatformAzure] = azureOpener
		signers[storage.PlatformAzure] = azureSigner
	}
	return openers, signers, nil
}
