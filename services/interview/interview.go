// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interview assembles and runs the mock-interview session service:
// BadgerDB store, policy evaluator, AI provider, sandbox, broadcast bus,
// and the Gin HTTP surface on top of them.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianInterview/services/interview/ai"
	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/config"
	"github.com/AleutianAI/AleutianInterview/services/interview/engine"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
	"github.com/AleutianAI/AleutianInterview/services/interview/policy"
	"github.com/AleutianAI/AleutianInterview/services/interview/routes"
	"github.com/AleutianAI/AleutianInterview/services/interview/sandbox"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

const (
	shutdownTimeout  = 10 * time.Second
	revocationSweep  = time.Minute
	serviceNameValue = "interview-service"
)

// Service is the assembled interview server.
type Service struct {
	settings config.Settings
	logger   *slog.Logger

	store      *store.Store
	bus        *broadcast.Bus
	engine     *engine.Engine
	revocation *auth.RevocationList
	router     *gin.Engine

	tracerCleanup func(context.Context)
}

// New builds the service from settings. Nothing starts listening until Run.
func New(settings config.Settings, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbCfg := store.InMemoryDBConfig()
	if settings.DBPath != "" {
		dbCfg = store.DefaultDBConfig(settings.DBPath)
	} else {
		logger.Warn("INTERVIEW_DB_PATH not set, using in-memory store; nothing survives a restart")
	}
	dbCfg.Logger = logger
	st, err := store.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pol, err := policy.NewEngine()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load policy thresholds: %w", err)
	}

	provider := ai.New(ai.Options{
		Provider:      settings.AIProvider,
		OpenAIKey:     settings.OpenAIAPIKey,
		OpenAIModel:   settings.OpenAIModel,
		GoogleKey:     settings.GoogleAPIKey,
		GeminiModel:   settings.GeminiModel,
		OpenAITimeout: settings.OpenAITimeout,
		GeminiTimeout: settings.GeminiTimeout,
	})

	bus := broadcast.NewBus()
	eng := engine.New(st, pol, provider, bus,
		sandbox.NewEvaluator(logger), settings.QuestionMinInterval, logger)

	revocation := auth.NewRevocationList()
	minter := auth.NewMinter(settings.AuthSecret, revocation)
	if settings.AuthSecret == "change_this" {
		logger.Warn("AUTH_SECRET is the default value; set it in any real deployment")
	}

	metrics := observability.InitMetrics()
	h := handlers.NewHandler(eng, minter, bus, settings, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceNameValue))
	router.Use(metrics.GinMiddleware())
	routes.SetupRoutes(router, h)

	svc := &Service{
		settings:   settings,
		logger:     logger,
		store:      st,
		bus:        bus,
		engine:     eng,
		revocation: revocation,
		router:     router,
	}

	if settings.OTelEndpoint != "" {
		cleanup, err := initTracer(settings.OTelEndpoint)
		if err != nil {
			logger.Warn("OTLP tracer setup failed, continuing without export",
				"endpoint", settings.OTelEndpoint, "error", err.Error())
		} else {
			svc.tracerCleanup = cleanup
		}
	}

	return svc, nil
}

// Router exposes the assembled Gin engine for tests.
func (s *Service) Router() *gin.Engine { return s.router }

// Run serves until ctx is cancelled, then shuts down in dependency order:
// HTTP first, then background analysis, streams, sweeper, store.
func (s *Service) Run(ctx context.Context) error {
	s.revocation.Start(revocationSweep)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.settings.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("interview service listening", "port", s.settings.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.close(context.Background())
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
	}
	s.close(shutdownCtx)
	return nil
}

func (s *Service) close(ctx context.Context) {
	s.engine.Close()
	s.bus.Shutdown()
	s.revocation.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(ctx)
	}
}

// initTracer wires OTLP/gRPC trace export and installs the global tracer
// provider.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceNameValue)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
