//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package storage defines the persistence contract for workflows, runs and
// their execution records, together with the row types shared by all
// backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when the requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// RunStatus enumerates run lifecycle states.
type RunStatus string

// Run lifecycle states. Terminal states are sticky: the executor never
// transitions a run out of succeeded or failed.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// NodeRunStatus enumerates per-node lifecycle states.
type NodeRunStatus string

// Node run lifecycle states.
const (
	NodeRunStatusPending   NodeRunStatus = "pending"
	NodeRunStatusRunning   NodeRunStatus = "running"
	NodeRunStatusSucceeded NodeRunStatus = "succeeded"
	NodeRunStatusFailed    NodeRunStatus = "failed"
	NodeRunStatusSkipped   NodeRunStatus = "skipped"
)

// Trigger types recorded on runs.
const (
	TriggerManual    = "manual"
	TriggerWebhook   = "webhook"
	TriggerAssistant = "assistant"
)

// LogLevel is the severity recorded on log entries.
type LogLevel string

// Log levels recorded on log entries.
const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Workflow is a stored workflow definition. Graph keeps the JSON document
// exactly as the author submitted it.
type Workflow struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	WebhookSlug string          `json:"webhook_slug,omitempty"`
	Graph       json.RawMessage `json:"graph"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Run is one execution of a workflow. Outputs maps node id to the node's
// output object; it holds partial outputs when the run failed midway.
type Run struct {
	ID             int64          `json:"id"`
	WorkflowID     int64          `json:"workflow_id"`
	UserID         string         `json:"user_id,omitempty"`
	Status         RunStatus      `json:"status"`
	TriggerType    string         `json:"trigger_type,omitempty"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
	Outputs        map[string]any `json:"outputs,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// NodeRun records the execution of a single node within a run. It is
// created when the node starts and mutated once at completion.
type NodeRun struct {
	ID         int64          `json:"id"`
	RunID      int64          `json:"run_id"`
	NodeID     string         `json:"node_id"`
	NodeType   string         `json:"node_type"`
	Status     NodeRunStatus  `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      map[string]any `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// LogEntry is one line of the append-only run log. IDs are monotonically
// increasing per store; consumers page with after_id cursors.
type LogEntry struct {
	ID      int64          `json:"id"`
	RunID   int64          `json:"run_id"`
	UserID  string         `json:"user_id,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Ts      time.Time      `json:"ts"`
	Level   LogLevel       `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// FileAsset records an object written to the artifact store during a run.
// Assets outlive runs and may be re-signed on demand.
type FileAsset struct {
	ID                 int64      `json:"id"`
	RunID              int64      `json:"run_id,omitempty"`
	NodeID             string     `json:"node_id,omitempty"`
	UserID             string     `json:"user_id,omitempty"`
	Storage            string     `json:"storage"`
	Bucket             string     `json:"bucket"`
	Path               string     `json:"path"`
	ContentType        string     `json:"content_type,omitempty"`
	Size               int64      `json:"size,omitempty"`
	SignedURL          string     `json:"signed_url,omitempty"`
	SignedURLExpiresAt *time.Time `json:"signed_url_expires_at,omitempty"`
	PublicURL          string     `json:"public_url,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IntegrationAccount is a third-party credential binding scoped to a user
// and toolkit. The engine treats connected_account_id as opaque.
type IntegrationAccount struct {
	ID                 int64     `json:"id"`
	UserID             string    `json:"user_id,omitempty"`
	Toolkit            string    `json:"toolkit"`
	ConnectedAccountID string    `json:"connected_account_id"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	// CreateWorkflow inserts a workflow and fills in its ID and CreatedAt.
	CreateWorkflow(ctx context.Context, w *Workflow) error
	// GetWorkflow returns the workflow or ErrNotFound.
	GetWorkflow(ctx context.Context, id int64) (*Workflow, error)
	// GetWorkflowBySlug returns the workflow bound to the webhook slug or
	// ErrNotFound.
	GetWorkflowBySlug(ctx context.Context, slug string) (*Workflow, error)
	// ListWorkflows returns all workflows ordered by id.
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	// UpdateWorkflow replaces the stored workflow fields.
	UpdateWorkflow(ctx context.Context, w *Workflow) error
	// DeleteWorkflow removes the workflow or returns ErrNotFound.
	DeleteWorkflow(ctx context.Context, id int64) error
}

// RunStore persists runs and node runs.
type RunStore interface {
	// CreateRun inserts a run and fills in its ID and CreatedAt.
	CreateRun(ctx context.Context, r *Run) error
	// GetRun returns the run or ErrNotFound.
	GetRun(ctx context.Context, id int64) (*Run, error)
	// ListRuns returns the workflow's runs, newest first.
	ListRuns(ctx context.Context, workflowID int64) ([]*Run, error)
	// UpdateRun replaces the mutable run fields.
	UpdateRun(ctx context.Context, r *Run) error

	// CreateNodeRun inserts a node run and fills in its ID.
	CreateNodeRun(ctx context.Context, nr *NodeRun) error
	// UpdateNodeRun replaces the mutable node run fields.
	UpdateNodeRun(ctx context.Context, nr *NodeRun) error
	// ListNodeRuns returns the run's node runs ordered by id.
	ListNodeRuns(ctx context.Context, runID int64) ([]*NodeRun, error)
}

// LogStore persists the append-only run log.
type LogStore interface {
	// AppendLog commits one entry and fills in its monotonic ID and Ts.
	// Each append is durable before it returns.
	AppendLog(ctx context.Context, e *LogEntry) error
	// ListLogs returns entries with id > afterID in ascending id order.
	// A non-positive limit means no limit.
	ListLogs(ctx context.Context, runID, afterID int64, limit int) ([]*LogEntry, error)
}

// FileStore persists file asset records.
type FileStore interface {
	// CreateFileAsset inserts an asset and fills in its ID and CreatedAt.
	CreateFileAsset(ctx context.Context, f *FileAsset) error
	// GetFileAsset returns the asset or ErrNotFound.
	GetFileAsset(ctx context.Context, id int64) (*FileAsset, error)
	// UpdateFileAsset replaces the asset's signed/public URL fields.
	UpdateFileAsset(ctx context.Context, f *FileAsset) error
	// ListFileAssets returns the run's assets ordered by id.
	ListFileAssets(ctx context.Context, runID int64) ([]*FileAsset, error)
}

// IntegrationStore persists third-party account bindings.
type IntegrationStore interface {
	// CreateIntegrationAccount inserts a binding and fills in its ID and
	// CreatedAt.
	CreateIntegrationAccount(ctx context.Context, a *IntegrationAccount) error
	// ListIntegrationAccounts returns the user's bindings, newest first.
	ListIntegrationAccounts(ctx context.Context, userID string) ([]*IntegrationAccount, error)
	// ResolveIntegrationAccount returns the most recent active binding for
	// the user and toolkit, or ErrNotFound.
	ResolveIntegrationAccount(ctx context.Context, userID, toolkit string) (*IntegrationAccount, error)
}

// Store is the full persistence contract consumed by the engine and the
// HTTP surface.
type Store interface {
	WorkflowStore
	RunStore
	LogStore
	FileStore
	IntegrationStore

	// Close releases the underlying resources.
	Close() error
}
