//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Command flowserver runs the workflow engine HTTP server. Everything is
// assembled from the environment; with no configuration it serves a fully
// in-memory deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
	artifactcos "trpc.group/trpc-go/trpc-flow-go/artifact/cos"
	artifactinmemory "trpc.group/trpc-go/trpc-flow-go/artifact/inmemory"
	artifacts3 "trpc.group/trpc-go/trpc-flow-go/artifact/s3"
	"trpc.group/trpc-go/trpc-flow-go/assistant"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/block/builtin"
	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
	codedocker "trpc.group/trpc-go/trpc-flow-go/codeexecutor/docker"
	codelocal "trpc.group/trpc-go/trpc-flow-go/codeexecutor/local"
	"trpc.group/trpc-go/trpc-flow-go/config"
	"trpc.group/trpc-go/trpc-flow-go/engine"
	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/model/gemini"
	"trpc.group/trpc-go/trpc-flow-go/model/openai"
	"trpc.group/trpc-go/trpc-flow-go/server"
	a2aserver "trpc.group/trpc-go/trpc-flow-go/server/a2a"
	"trpc.group/trpc-go/trpc-flow-go/storage"
	storageinmemory "trpc.group/trpc-go/trpc-flow-go/storage/inmemory"
	storagepostgres "trpc.group/trpc-go/trpc-flow-go/storage/postgres"
	storagesqlite "trpc.group/trpc-go/trpc-flow-go/storage/sqlite"
	"trpc.group/trpc-go/trpc-flow-go/telemetry"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("flowserver: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.OTLPEndpoint != "" {
		flush, err := telemetry.Start(ctx,
			telemetry.WithEndpoint(cfg.OTLPEndpoint),
			telemetry.WithProtocol(cfg.OTLPProtocol),
			telemetry.WithServiceName("flowserver"),
		)
		if err != nil {
			return fmt.Errorf("start telemetry: %w", err)
		}
		defer func() {
			if err := flush(); err != nil {
				log.Warnf("flush telemetry: %v", err)
			}
		}()
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	registry := block.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		return fmt.Errorf("register blocks: %w", err)
	}

	artifacts, err := newArtifacts(ctx, cfg)
	if err != nil {
		return err
	}
	chatModel := newModel(ctx, cfg)
	code, err := newCodeExecutor(ctx, cfg)
	if err != nil {
		return err
	}

	execOpts := []engine.Option{
		engine.WithSignedURLTTL(cfg.SignedURLTTL),
	}
	if artifacts != nil {
		execOpts = append(execOpts, engine.WithArtifacts(artifacts))
	}
	if chatModel != nil {
		execOpts = append(execOpts, engine.WithModel(chatModel))
	}
	if audio, ok := chatModel.(*openai.Model); ok {
		execOpts = append(execOpts,
			engine.WithSpeech(audio),
			engine.WithTranscriber(audio),
		)
	}
	if code != nil {
		execOpts = append(execOpts, engine.WithCodeExecutor(code))
	}
	if cfg.ComposioAPIKey != "" {
		execOpts = append(execOpts, engine.WithComposioKey(cfg.ComposioAPIKey))
	}
	exec := engine.New(store, registry, execOpts...)

	orch, err := engine.NewOrchestrator(store, exec)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			log.Warnf("close orchestrator: %v", err)
		}
	}()

	assistantOpts := []assistant.Option{}
	if chatModel != nil {
		assistantOpts = append(assistantOpts, assistant.WithModel(chatModel))
	}
	assistantSvc := assistant.New(store, registry, assistantOpts...)

	serverOpts := []server.Option{
		server.WithAssistant(assistantSvc),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithSignedURLTTL(cfg.SignedURLTTL),
	}
	if artifacts != nil {
		serverOpts = append(serverOpts, server.WithArtifacts(artifacts))
	}
	srv := server.New(store, registry, orch, serverOpts...)

	addr := fmt.Sprintf(":%d", cfg.Port)
	mux := http.NewServeMux()
	if cfg.A2AEnabled {
		a2aSrv, err := a2aserver.New(assistantSvc, a2aserver.WithHost(fmt.Sprintf("localhost:%d", cfg.Port)))
		if err != nil {
			return fmt.Errorf("create a2a server: %w", err)
		}
		mux.Handle("/a2a/", a2aSrv.Handler())
	}
	mux.Handle("/", srv.Handler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("flowserver listening on %s (store=%s, objects=%s)", addr, cfg.StoreBackend, cfg.ObjectStore)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("flowserver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		store, err := storagesqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := storagepostgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return storageinmemory.NewStore(), nil
	}
}

func newArtifacts(ctx context.Context, cfg *config.Config) (artifact.Service, error) {
	switch cfg.ObjectStore {
	case config.ObjectStoreS3:
		svc, err := artifacts3.NewService(ctx, cfg.StorageBucket,
			artifacts3.WithEndpoint(cfg.S3Endpoint),
			artifacts3.WithRegion(cfg.S3Region),
			artifacts3.WithCredentials(cfg.S3AccessKeyID, cfg.S3SecretAccessKey),
			artifacts3.WithPathStyle(cfg.S3PathStyle),
		)
		if err != nil {
			return nil, fmt.Errorf("create s3 artifact service: %w", err)
		}
		return svc, nil
	case config.ObjectStoreCOS:
		svc, err := artifactcos.NewService(cfg.COSBucketURL,
			artifactcos.WithSecretID(cfg.COSSecretID),
			artifactcos.WithSecretKey(cfg.COSSecretKey),
		)
		if err != nil {
			return nil, fmt.Errorf("create cos artifact service: %w", err)
		}
		return svc, nil
	default:
		return artifactinmemory.NewService(cfg.StorageBucket), nil
	}
}

// newModel picks the chat backend: Gemini when a Google key is present,
// OpenAI when its key is, nil otherwise. A nil model leaves llm and agent
// blocks on their deterministic offline paths.
func newModel(ctx context.Context, cfg *config.Config) model.Model {
	if cfg.GoogleAPIKey != "" {
		m, err := gemini.New(ctx, cfg.GeminiModel, gemini.WithAPIKey(cfg.GoogleAPIKey))
		if err != nil {
			log.Warnf("create gemini model: %v, continuing without a model", err)
			return nil
		}
		return m
	}
	if cfg.OpenAIAPIKey != "" {
		opts := []openai.Option{openai.WithAPIKey(cfg.OpenAIAPIKey)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return openai.New(cfg.OpenAIModel, opts...)
	}
	return nil
}

func newCodeExecutor(ctx context.Context, cfg *config.Config) (codeexecutor.Executor, error) {
	switch cfg.CodeInterpreter {
	case config.CodeInterpreterLocal:
		return codelocal.New(), nil
	case config.CodeInterpreterDocker:
		exec, err := codedocker.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create docker code executor: %w", err)
		}
		return exec, nil
	default:
		return nil, nil
	}
}
