// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles the HTTP service: storage, provider,
// auth mode, and the route table, then runs the server until shutdown.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/auth"
	"github.com/anchorage-ai/anchorage/services/gateway/chat"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/files"
	"github.com/anchorage-ai/anchorage/services/gateway/handlers"
	"github.com/anchorage-ai/anchorage/services/gateway/middleware"
	"github.com/anchorage-ai/anchorage/services/gateway/observability"
	"github.com/anchorage-ai/anchorage/services/gateway/routes"
	"github.com/anchorage-ai/anchorage/services/gateway/settings"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
	"github.com/anchorage-ai/anchorage/services/llm"
	"github.com/anchorage-ai/anchorage/services/objectstore"
)

// Server is the assembled gateway.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine

	ds       *docstore.BadgerStore
	provider llm.Provider

	shutdownTracing func(context.Context) error
}

// New wires every component from configuration. Nothing listens yet;
// call Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shutdownTracing, err := initTracing()
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}

	ds, err := docstore.OpenBadger(docstore.BadgerConfig{
		Path:       filepath.Join(cfg.DataDir, "docstore"),
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	stores, err := store.New(ctx, ds)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("prepare collections: %w", err)
	}

	objects, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		Region:    cfg.ObjectStore.Region,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		UseTLS:    cfg.ObjectStore.UseTLS,
	})
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("object store client: %w", err)
	}
	if err := objects.EnsureBucket(ctx, cfg.ObjectStore.DefaultBucket); err != nil {
		ds.Close()
		return nil, fmt.Errorf("ensure bucket %q: %w", cfg.ObjectStore.DefaultBucket, err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if err := provider.ValidateConfig(); err != nil {
		ds.Close()
		return nil, fmt.Errorf("llm provider config: %w", err)
	}
	if err := provider.Connect(ctx); err != nil {
		// Reachability is retried per request; boot should not depend
		// on the provider being up.
		logger.Warn("LLM provider not reachable at startup",
			"provider", provider.ProviderName(), "error", err)
	}

	resolver, localSvc, err := buildAuth(ctx, cfg, stores, logger)
	if err != nil {
		ds.Close()
		return nil, err
	}

	settingsSvc := settings.NewService(ds)
	catalog := files.NewCatalog(stores.Files, objects, cfg.ObjectStore.DefaultBucket, cfg.Upload, logger)
	engine := chat.NewEngine(stores.Conversations, stores.Messages, settingsSvc, provider, logger)
	gate := middleware.NewMaintenanceGate(cfg.MaintenanceMode, cfg.MaintenanceMessage)

	// Model management only makes sense against the local engine.
	ollama, _ := provider.(*llm.OllamaClient)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	routes.SetupRoutes(router, routes.Deps{
		Resolver: resolver,
		Gate:     gate,
		Logger:   logger,

		Auth:               handlers.NewAuthHandler(localSvc, cfg.AuthMode),
		Users:              handlers.NewUsersHandler(stores.Users),
		UserGroups:         handlers.NewUserGroupsHandler(stores.UserGroups, stores.Users, stores.Memberships),
		Conversations:      handlers.NewConversationsHandler(stores.Conversations, stores.Messages),
		ConversationGroups: handlers.NewConversationGroupsHandler(stores.ConversationGroups, stores.Conversations),
		Files:              handlers.NewFilesHandler(catalog),
		Settings:           handlers.NewSettingsHandler(settingsSvc),
		Chat:               handlers.NewChatHandler(engine, logger),
		Admin:              handlers.NewAdminHandler(gate, logger),
		Models:             handlers.NewModelsHandler(ollama),
	})

	return &Server{
		cfg:             cfg,
		logger:          logger,
		router:          router,
		ds:              ds,
		provider:        provider,
		shutdownTracing: shutdownTracing,
	}, nil
}

// buildAuth selects the principal resolver for the configured mode and,
// in local mode, bootstraps the root account.
func buildAuth(ctx context.Context, cfg *config.Config, stores *store.Stores, logger *slog.Logger) (auth.Resolver, *auth.LocalService, error) {
	switch cfg.AuthMode {
	case config.AuthModeLocal:
		issuer, err := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenExpiry)
		if err != nil {
			return nil, nil, err
		}
		localSvc := auth.NewLocalService(stores.Users, issuer, logger)
		if err := localSvc.EnsureRoot(ctx, cfg.RootUserName, cfg.RootUserEmail, cfg.RootUserPassword); err != nil {
			return nil, nil, err
		}
		return auth.NewTokenResolver(issuer, stores.Users), localSvc, nil

	case config.AuthModeSSO:
		return auth.NewSSOResolver(stores.Users, cfg.SSO, logger), nil, nil

	case config.AuthModeNone:
		// Single-tenant deployment behind a trusted network boundary.
		return auth.StaticResolver{Principal: datatypes.Principal{
			ID:   "local",
			Role: datatypes.RoleRoot,
		}}, nil, nil

	default:
		return nil, nil, apperrors.Newf(apperrors.KindInternal, "unknown auth mode %q", cfg.AuthMode)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests.
// Active SSE streams get the drain window to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", "addr", s.cfg.ListenAddr,
			"auth_mode", s.cfg.AuthMode, "provider", s.provider.ProviderName())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Forced shutdown", "error", err)
	}
	s.close()
	return nil
}

func (s *Server) close() {
	if err := s.provider.Disconnect(); err != nil {
		s.logger.Warn("Provider disconnect failed", "error", err)
	}
	if err := s.ds.Close(); err != nil {
		s.logger.Warn("Document store close failed", "error", err)
	}
	if s.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Warn("Tracer shutdown failed", "error", err)
		}
	}
}

// initTracing installs a stdout span exporter. Spans go to the log
// stream; a collector can be swapped in without touching callers.
func initTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String("anchorage-gateway")))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
