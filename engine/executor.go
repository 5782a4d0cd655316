//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package engine executes workflow runs: it walks the control subgraph in
// topological order, drives each node through the block registry, persists
// the per-node lifecycle, and appends the run log observers stream from.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
	"trpc.group/trpc-go/trpc-flow-go/graph"
	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// instrumentName identifies the engine to tracer and meter providers.
const instrumentName = "trpc.group/trpc-go/trpc-flow-go/engine"

// EventKey is the log data key carrying run lifecycle events. The stream
// endpoint turns entries carrying it into typed frames.
const EventKey = "event"

// Lifecycle events recorded on log entries.
const (
	EventRunStarted   = "run_started"
	EventNodeStarted  = "node_started"
	EventNodeFinished = "node_finished"
	EventNodeFailed   = "node_failed"
	EventRunFinished  = "run_finished"
)

// defaultHTTPTimeout bounds a single request of the per-run HTTP client.
const defaultHTTPTimeout = 30 * time.Second

// defaultSignedURLTTL bounds signed URLs minted for file outputs.
const defaultSignedURLTTL = time.Hour

// Executor runs one workflow run to completion. It is safe for concurrent
// use; every run gets its own HTTP client and capability bundle.
type Executor struct {
	store    storage.Store
	registry *block.Registry

	artifacts    artifact.Service
	model        model.Model
	speech       model.SpeechSynthesizer
	transcriber  model.Transcriber
	code         codeexecutor.Executor
	composioKey  string
	signedURLTTL time.Duration
	httpTimeout  time.Duration

	tracer   trace.Tracer
	runsDone metric.Int64Counter
	nodeDone metric.Int64Counter
}

// Option configures an Executor.
type Option func(*Executor)

// WithArtifacts sets the object-store service blocks upload files through.
func WithArtifacts(svc artifact.Service) Option {
	return func(e *Executor) { e.artifacts = svc }
}

// WithModel sets the chat model for llm.simple and agent nodes.
func WithModel(m model.Model) Option {
	return func(e *Executor) { e.model = m }
}

// WithSpeech sets the speech synthesizer for audio.tts.
func WithSpeech(s model.SpeechSynthesizer) Option {
	return func(e *Executor) { e.speech = s }
}

// WithTranscriber sets the transcriber for audio.stt.
func WithTranscriber(t model.Transcriber) Option {
	return func(e *Executor) { e.transcriber = t }
}

// WithCodeExecutor sets the backend for tool.code_interpreter sub-calls.
func WithCodeExecutor(ce codeexecutor.Executor) Option {
	return func(e *Executor) { e.code = ce }
}

// WithComposioKey enables Composio-hosted tools.
func WithComposioKey(key string) Option {
	return func(e *Executor) { e.composioKey = key }
}

// WithSignedURLTTL sets the lifetime of signed URLs minted during runs.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		if ttl > 0 {
			e.signedURLTTL = ttl
		}
	}
}

// WithHTTPTimeout bounds individual requests of the per-run HTTP client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.httpTimeout = d
		}
	}
}

// New builds an Executor over a store and a block registry.
func New(store storage.Store, registry *block.Registry, opts ...Option) *Executor {
	e := &Executor{
		store:        store,
		registry:     registry,
		signedURLTTL: defaultSignedURLTTL,
		httpTimeout:  defaultHTTPTimeout,
		tracer:       otel.Tracer(instrumentName),
	}
	for _, opt := range opts {
		opt(e)
	}
	meter := otel.Meter(instrumentName)
	var err error
	if e.runsDone, err = meter.Int64Counter("flow.runs.completed",
		metric.WithDescription("Completed workflow runs by terminal status."),
		metric.WithUnit("1"),
	); err != nil {
		log.Warnf("engine: create run counter: %v", err)
	}
	if e.nodeDone, err = meter.Int64Counter("flow.node_runs.completed",
		metric.WithDescription("Completed node executions by terminal status and block type."),
		metric.WithUnit("1"),
	); err != nil {
		log.Warnf("engine: create node run counter: %v", err)
	}
	return e
}

// ExecuteRun drives the run with the given id to a terminal state. Terminal
// runs are left untouched. The returned error reports engine-level failures
// (store unreachable, unknown run); node failures are persisted into the run
// instead and do not surface here.
func (e *Executor) ExecuteRun(ctx context.Context, runID int64) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %d: %w", runID, err)
	}
	if run.Status.Terminal() {
		return nil
	}
	wf, err := e.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %d: %w", run.WorkflowID, err)
	}

	ctx, span := e.tracer.Start(ctx, "flow.run",
		trace.WithAttributes(
			attribute.Int64("flow.run.id", run.ID),
			attribute.Int64("flow.workflow.id", run.WorkflowID),
			attribute.String("flow.trigger.type", run.TriggerType),
		))
	defer span.End()

	now := time.Now().UTC()
	run.Status = storage.RunStatusRunning
	run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run %d running: %w", runID, err)
	}

	rc, closeRC := e.runContext(ctx, run)
	defer closeRC()

	rc.Info("", "Run started", map[string]any{
		EventKey:      EventRunStarted,
		"workflow_id": run.WorkflowID,
	})

	outputs := make(map[string]map[string]any)
	failure := e.executeNodes(ctx, run, wf, rc, outputs)

	fin := time.Now().UTC()
	run.FinishedAt = &fin
	run.Outputs = flattenOutputs(outputs)
	if failure != nil {
		run.Status = storage.RunStatusFailed
		span.SetStatus(codes.Error, failure.Message)
	} else {
		run.Status = storage.RunStatusSucceeded
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}

	if failure != nil {
		rc.AppendLog(storage.LevelError, "Run failed", map[string]any{
			EventKey: EventRunFinished,
			"status": string(storage.RunStatusFailed),
			"error":  failure.Message,
		}, "")
	} else {
		rc.Info("", "Run succeeded", map[string]any{
			EventKey: EventRunFinished,
			"status": string(storage.RunStatusSucceeded),
		})
	}
	e.countRun(ctx, run.Status)
	return nil
}

// executeNodes walks the control subgraph and returns the first failure, or
// nil when every node succeeded. Completed outputs accumulate in outputs
// even when a later node fails.
func (e *Executor) executeNodes(ctx context.Context, run *storage.Run, wf *storage.Workflow,
	rc *block.RunContext, outputs map[string]map[string]any) *block.Error {
	g, err := graph.Parse(wf.Graph)
	if err != nil {
		return block.Internalf("parse workflow graph: %v", err)
	}
	order, err := graph.TopoOrder(g)
	if err != nil {
		return block.Internalf("order workflow graph: %v", err)
	}

	for _, nodeID := range order {
		node := g.Node(nodeID)
		if strings.HasPrefix(node.Type, "tool.") {
			e.skipToolNode(ctx, rc, run, node)
			continue
		}

		in := e.buildInput(g, node, run, outputs)
		started := time.Now().UTC()
		nr := &storage.NodeRun{
			RunID:     run.ID,
			NodeID:    node.ID,
			NodeType:  node.Type,
			Status:    storage.NodeRunStatusRunning,
			Input:     in.AsMap(),
			StartedAt: &started,
		}
		if err := e.store.CreateNodeRun(ctx, nr); err != nil {
			return block.Internalf("persist node run for %s: %v", node.ID, err)
		}
		rc.Info(node.ID, "Starting node "+node.ID, map[string]any{
			EventKey:    EventNodeStarted,
			"node_type": node.Type,
		})

		out, err := e.invokeNode(ctx, node, in, rc)
		finished := time.Now().UTC()
		nr.FinishedAt = &finished
		if err != nil {
			be := block.FromError(err)
			nr.Status = storage.NodeRunStatusFailed
			nr.Error = be.AsMap()
			if uerr := e.store.UpdateNodeRun(ctx, nr); uerr != nil {
				log.Errorf("run %d: persist failure of node %s: %v", run.ID, node.ID, uerr)
			}
			rc.AppendLog(storage.LevelError, fmt.Sprintf("Node %s failed: %s", node.ID, be.Message), map[string]any{
				EventKey: EventNodeFailed,
				"error":  be.Message,
				"kind":   string(be.Kind),
			}, node.ID)
			e.countNode(ctx, node.Type, storage.NodeRunStatusFailed)
			return be
		}

		outputs[node.ID] = out
		nr.Status = storage.NodeRunStatusSucceeded
		nr.Output = out
		if uerr := e.store.UpdateNodeRun(ctx, nr); uerr != nil {
			return block.Internalf("persist node run for %s: %v", node.ID, uerr)
		}
		rc.Info(node.ID, "Finished node "+node.ID, map[string]any{
			EventKey: EventNodeFinished,
		})
		e.countNode(ctx, node.Type, storage.NodeRunStatusSucceeded)
	}
	return nil
}

// invokeNode runs one block under a node span, honoring the node's
// timeout_seconds setting through a context deadline.
func (e *Executor) invokeNode(ctx context.Context, node *graph.Node, in *block.Input,
	rc *block.RunContext) (map[string]any, error) {
	ctx, span := e.tracer.Start(ctx, "flow.node "+node.Type,
		trace.WithAttributes(
			attribute.String("flow.node.id", node.ID),
			attribute.String("flow.node.type", node.Type),
		))
	defer span.End()

	if ts, ok := node.Settings["timeout_seconds"].(float64); ok && ts > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ts*float64(time.Second)))
		defer cancel()
	}

	out, err := e.registry.Run(ctx, node.Type, in, rc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// skipToolNode records a skipped NodeRun for a tool node. Tool nodes only
// execute inside agent sub-executions.
func (e *Executor) skipToolNode(ctx context.Context, rc *block.RunContext, run *storage.Run, node *graph.Node) {
	now := time.Now().UTC()
	nr := &storage.NodeRun{
		RunID:      run.ID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     storage.NodeRunStatusSkipped,
		StartedAt:  &now,
		FinishedAt: &now,
	}
	if err := e.store.CreateNodeRun(ctx, nr); err != nil {
		log.Warnf("run %d: skipped row for node %s not persisted: %v", run.ID, node.ID, err)
	}
	rc.Info(node.ID, "skipped; invoked via agent", nil)
}

// buildInput materializes the block input for one node: its settings, the
// outputs of its completed control parents, the trigger payload, and for
// agent nodes the tool bindings derived from tool edges.
func (e *Executor) buildInput(g *graph.Graph, node *graph.Node, run *storage.Run,
	outputs map[string]map[string]any) *block.Input {
	upstream := make(map[string]map[string]any)
	for _, parent := range g.ControlParents(node.ID) {
		if out, ok := outputs[parent]; ok {
			upstream[parent] = out
		}
	}
	in := &block.Input{
		Settings: node.Settings,
		Upstream: upstream,
		Trigger:  run.TriggerPayload,
		NodeID:   node.ID,
		UserID:   run.UserID,
	}
	if e.registry.IsAgent(node.Type) {
		in.DerivedTools = derivedTools(g, node)
	}
	return in
}

// derivedTools collects the tool nodes attached to an agent through tool
// edges. Either edge orientation attaches the tool; duplicate names dedupe
// later when the agent merges its bindings.
func derivedTools(g *graph.Graph, agent *graph.Node) []block.ToolSpec {
	var specs []block.ToolSpec
	for _, edge := range g.Edges {
		if edge.EffectiveKind() != graph.EdgeKindTool {
			continue
		}
		var toolID string
		switch agent.ID {
		case edge.From:
			toolID = edge.To
		case edge.To:
			toolID = edge.From
		default:
			continue
		}
		tn := g.Node(toolID)
		if tn == nil {
			continue
		}
		name, _ := tn.Settings["name"].(string)
		if name == "" {
			name = tn.ID
		}
		specs = append(specs, block.ToolSpec{
			ID:       tn.ID,
			Name:     name,
			Type:     tn.Type,
			Settings: tn.Settings,
		})
	}
	return specs
}

// runContext assembles the capability bundle for one run. The returned
// cleanup tears down the per-run HTTP client. Log writes detach from node
// deadlines so failure entries still commit after an expiry.
func (e *Executor) runContext(ctx context.Context, run *storage.Run) (*block.RunContext, func()) {
	client := &http.Client{Timeout: e.httpTimeout}
	logCtx := context.WithoutCancel(ctx)
	rc := &block.RunContext{
		HTTPClient:   client,
		Artifacts:    e.artifacts,
		Store:        e.store,
		Model:        e.model,
		Speech:       e.speech,
		Transcriber:  e.transcriber,
		Code:         e.code,
		ComposioKey:  e.composioKey,
		Registry:     e.registry,
		SignedURLTTL: e.signedURLTTL,
		RunID:        run.ID,
		UserID:       run.UserID,
		Log: func(level storage.LogLevel, message string, data map[string]any, nodeID string) {
			entry := &storage.LogEntry{
				RunID:   run.ID,
				UserID:  run.UserID,
				NodeID:  nodeID,
				Level:   level,
				Message: message,
				Data:    data,
			}
			if err := e.store.AppendLog(logCtx, entry); err != nil {
				log.Errorf("run %d: append log: %v", run.ID, err)
			}
		},
	}
	return rc, client.CloseIdleConnections
}

func (e *Executor) countRun(ctx context.Context, status storage.RunStatus) {
	if e.runsDone == nil {
		return
	}
	e.runsDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

func (e *Executor) countNode(ctx context.Context, nodeType string, status storage.NodeRunStatus) {
	if e.nodeDone == nil {
		return
	}
	e.nodeDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("node_type", nodeType),
	))
}

func flattenOutputs(outputs map[string]map[string]any) map[string]any {
	flat := make(map[string]any, len(outputs))
	for id, out := range outputs {
		flat[id] = out
	}
	return flat
}
