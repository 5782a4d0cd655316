//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package block

import (
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// LogFunc appends one log entry for the run. Implementations must commit
// the entry durably before returning.
type LogFunc func(level storage.LogLevel, message string, data map[string]any, nodeID string)

// RunContext is the capability bundle injected into every block execution.
// Blocks never reach global state; everything they may touch is here.
// Optional capabilities are nil when unconfigured and blocks degrade or
// fail with DependencyError as their contract specifies.
type RunContext struct {
	// HTTPClient is the run-scoped HTTP client.
	HTTPClient *http.Client
	// Artifacts is the object-store service, nil when none is configured.
	Artifacts artifact.Service
	// Store gives access to file-asset and integration-account rows.
	Store storage.Store
	// Model is the configured chat model, nil when no API key is present.
	Model model.Model
	// Speech synthesizes audio for text, nil when the provider has no
	// speech surface.
	Speech model.SpeechSynthesizer
	// Transcriber converts audio to text, nil when unavailable.
	Transcriber model.Transcriber
	// Code runs agent code-interpreter snippets, nil unless configured.
	Code codeexecutor.Executor
	// ComposioKey enables Composio-hosted tools when non-empty.
	ComposioKey string
	// Registry dispatches agent tool sub-calls through the block library.
	Registry *Registry
	// Log appends a run log entry; set by the engine.
	Log LogFunc
	// SignedURLTTL bounds signed URLs minted for file outputs.
	SignedURLTTL time.Duration
	// RunID is the executing run.
	RunID int64
	// UserID is the run's user, empty when anonymous.
	UserID string
}

// AppendLog writes through the run's log sink when one is set.
func (rc *RunContext) AppendLog(level storage.LogLevel, message string, data map[string]any, nodeID string) {
	if rc == nil || rc.Log == nil {
		return
	}
	rc.Log(level, message, data, nodeID)
}

// Info appends an info-level log entry.
func (rc *RunContext) Info(nodeID, message string, data map[string]any) {
	rc.AppendLog(storage.LevelInfo, message, data, nodeID)
}

// Warn appends a warn-level log entry.
func (rc *RunContext) Warn(nodeID, message string, data map[string]any) {
	rc.AppendLog(storage.LevelWarn, message, data, nodeID)
}
