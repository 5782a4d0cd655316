//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// DefaultWorkers bounds concurrent run execution when not configured.
const DefaultWorkers = 16

// closeDrainTimeout bounds how long Close waits for in-flight runs.
const closeDrainTimeout = 10 * time.Second

// Orchestrator accepts run requests, persists the pending run row, and
// executes runs on a bounded worker pool detached from the caller.
type Orchestrator struct {
	store storage.Store
	exec  *Executor
	pool  *ants.Pool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	workers int
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// NewOrchestrator builds an Orchestrator over a store and an Executor.
func NewOrchestrator(store storage.Store, exec *Executor, opts ...OrchestratorOption) (*Orchestrator, error) {
	options := &orchestratorOptions{workers: DefaultWorkers}
	for _, opt := range opts {
		opt(options)
	}
	pool, err := ants.NewPool(options.workers)
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}
	return &Orchestrator{store: store, exec: exec, pool: pool}, nil
}

// StartRun creates a pending run for the workflow and schedules its
// execution. The returned run is still pending; callers observe progress
// through the store. An empty userID inherits the workflow owner.
func (o *Orchestrator) StartRun(ctx context.Context, workflowID int64, triggerType string,
	payload map[string]any, userID string) (*storage.Run, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = wf.UserID
	}
	run := &storage.Run{
		WorkflowID:     workflowID,
		UserID:         userID,
		Status:         storage.RunStatusPending,
		TriggerType:    triggerType,
		TriggerPayload: payload,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	// The run outlives the triggering request; only tracing context
	// survives the detach.
	runCtx := context.WithoutCancel(ctx)
	if err := o.pool.Submit(func() {
		if err := o.exec.ExecuteRun(runCtx, run.ID); err != nil {
			log.Errorf("run %d: %v", run.ID, err)
		}
	}); err != nil {
		o.failUnstarted(ctx, run)
		return nil, fmt.Errorf("schedule run %d: %w", run.ID, err)
	}
	return run, nil
}

// failUnstarted marks a run that never reached a worker.
func (o *Orchestrator) failUnstarted(ctx context.Context, run *storage.Run) {
	now := time.Now().UTC()
	run.Status = storage.RunStatusFailed
	run.FinishedAt = &now
	if err := o.store.UpdateRun(ctx, run); err != nil {
		log.Errorf("run %d: mark unscheduled run failed: %v", run.ID, err)
	}
}

// Close stops accepting new runs and waits briefly for in-flight ones.
func (o *Orchestrator) Close() error {
	return o.pool.ReleaseTimeout(closeDrainTimeout)
}
