//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a map-backed implementation of storage.Store.
// It is the development default and the backend end-to-end tests run
// against.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// Compile-time check that Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

// Store keeps all rows in process memory. Log ids are monotonic across
// the whole store, matching the cursor contract of the SQL backends.
type Store struct {
	mu sync.RWMutex

	workflows map[int64]*storage.Workflow
	runs      map[int64]*storage.Run
	nodeRuns  map[int64]*storage.NodeRun
	logs      []*storage.LogEntry
	files     map[int64]*storage.FileAsset
	accounts  map[int64]*storage.IntegrationAccount

	nextWorkflowID int64
	nextRunID      int64
	nextNodeRunID  int64
	nextLogID      int64
	nextFileID     int64
	nextAccountID  int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[int64]*storage.Workflow),
		runs:      make(map[int64]*storage.Run),
		nodeRuns:  make(map[int64]*storage.NodeRun),
		files:     make(map[int64]*storage.FileAsset),
		accounts:  make(map[int64]*storage.IntegrationAccount),
	}
}

// CreateWorkflow implements storage.WorkflowStore.
func (s *Store) CreateWorkflow(_ context.Context, w *storage.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWorkflowID++
	w.ID = s.nextWorkflowID
	w.CreatedAt = time.Now().UTC()
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

// GetWorkflow implements storage.WorkflowStore.
func (s *Store) GetWorkflow(_ context.Context, id int64) (*storage.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWorkflow(w), nil
}

// GetWorkflowBySlug implements storage.WorkflowStore.
func (s *Store) GetWorkflowBySlug(_ context.Context, slug string) (*storage.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.workflows {
		if w.WebhookSlug != "" && w.WebhookSlug == slug {
			return cloneWorkflow(w), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListWorkflows implements storage.WorkflowStore.
func (s *Store) ListWorkflows(_ context.Context) ([]*storage.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, cloneWorkflow(w))
	}
	slices.SortFunc(out, func(a, b *storage.Workflow) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

// UpdateWorkflow implements storage.WorkflowStore.
func (s *Store) UpdateWorkflow(_ context.Context, w *storage.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workflows[w.ID]
	if !ok {
		return storage.ErrNotFound
	}
	w.CreatedAt = stored.CreatedAt
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

// DeleteWorkflow implements storage.WorkflowStore.
func (s *Store) DeleteWorkflow(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// CreateRun implements storage.RunStore.
func (s *Store) CreateRun(_ context.Context, r *storage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRunID++
	r.ID = s.nextRunID
	r.CreatedAt = time.Now().UTC()
	if r.Status == "" {
		r.Status = storage.RunStatusPending
	}
	s.runs[r.ID] = cloneRun(r)
	return nil
}

// GetRun implements storage.RunStore.
func (s *Store) GetRun(_ context.Context, id int64) (*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRun(r), nil
}

// ListRuns implements storage.RunStore.
func (s *Store) ListRuns(_ context.Context, workflowID int64) ([]*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Run
	for _, r := range s.runs {
		if r.WorkflowID == workflowID {
			out = append(out, cloneRun(r))
		}
	}
	slices.SortFunc(out, func(a, b *storage.Run) int {
		return int(b.ID - a.ID)
	})
	return out, nil
}

// UpdateRun implements storage.RunStore.
func (s *Store) UpdateRun(_ context.Context, r *storage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[r.ID]
	if !ok {
		return storage.ErrNotFound
	}
	r.CreatedAt = stored.CreatedAt
	s.runs[r.ID] = cloneRun(r)
	return nil
}

// CreateNodeRun implements storage.RunStore.
func (s *Store) CreateNodeRun(_ context.Context, nr *storage.NodeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNodeRunID++
	nr.ID = s.nextNodeRunID
	if nr.Status == "" {
		nr.Status = storage.NodeRunStatusPending
	}
	s.nodeRuns[nr.ID] = cloneNodeRun(nr)
	return nil
}

// UpdateNodeRun implements storage.RunStore.
func (s *Store) UpdateNodeRun(_ context.Context, nr *storage.NodeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodeRuns[nr.ID]; !ok {
		return storage.ErrNotFound
	}
	s.nodeRuns[nr.ID] = cloneNodeRun(nr)
	return nil
}

// ListNodeRuns implements storage.RunStore.
func (s *Store) ListNodeRuns(_ context.Context, runID int64) ([]*storage.NodeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.NodeRun
	for _, nr := range s.nodeRuns {
		if nr.RunID == runID {
			out = append(out, cloneNodeRun(nr))
		}
	}
	slices.SortFunc(out, func(a, b *storage.NodeRun) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

// AppendLog implements storage.LogStore.
func (s *Store) AppendLog(_ context.Context, e *storage.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	e.ID = s.nextLogID
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	clone := *e
	clone.Data = maps.Clone(e.Data)
	s.logs = append(s.logs, &clone)
	return nil
}

// ListLogs implements storage.LogStore.
func (s *Store) ListLogs(_ context.Context, runID, afterID int64, limit int) ([]*storage.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.LogEntry
	for _, e := range s.logs {
		if e.RunID != runID || e.ID <= afterID {
			continue
		}
		clone := *e
		clone.Data = maps.Clone(e.Data)
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateFileAsset implements storage.FileStore.
func (s *Store) CreateFileAsset(_ context.Context, f *storage.FileAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFileID++
	f.ID = s.nextFileID
	f.CreatedAt = time.Now().UTC()
	clone := *f
	s.files[f.ID] = &clone
	return nil
}

// GetFileAsset implements storage.FileStore.
func (s *Store) GetFileAsset(_ context.Context, id int64) (*storage.FileAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *f
	return &clone, nil
}

// UpdateFileAsset implements storage.FileStore.
func (s *Store) UpdateFileAsset(_ context.Context, f *storage.FileAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.files[f.ID]
	if !ok {
		return storage.ErrNotFound
	}
	f.CreatedAt = stored.CreatedAt
	clone := *f
	s.files[f.ID] = &clone
	return nil
}

// ListFileAssets implements storage.FileStore.
func (s *Store) ListFileAssets(_ context.Context, runID int64) ([]*storage.FileAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.FileAsset
	for _, f := range s.files {
		if f.RunID == runID {
			clone := *f
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *storage.FileAsset) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

// CreateIntegrationAccount implements storage.IntegrationStore.
func (s *Store) CreateIntegrationAccount(_ context.Context, a *storage.IntegrationAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAccountID++
	a.ID = s.nextAccountID
	a.CreatedAt = time.Now().UTC()
	clone := *a
	s.accounts[a.ID] = &clone
	return nil
}

// ListIntegrationAccounts implements storage.IntegrationStore.
func (s *Store) ListIntegrationAccounts(_ context.Context, userID string) ([]*storage.IntegrationAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.IntegrationAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			clone := *a
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *storage.IntegrationAccount) int {
		return int(b.ID - a.ID)
	})
	return out, nil
}

// ResolveIntegrationAccount implements storage.IntegrationStore.
func (s *Store) ResolveIntegrationAccount(_ context.Context, userID, toolkit string) (*storage.IntegrationAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *storage.IntegrationAccount
	for _, a := range s.accounts {
		if a.UserID != userID || a.Toolkit != toolkit || a.Status != "active" {
			continue
		}
		if best == nil || a.ID > best.ID {
			best = a
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	clone := *best
	return &clone, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
}

func cloneWorkflow(w *storage.Workflow) *storage.Workflow {
	clone := *w
	clone.Graph = slices.Clone(w.Graph)
	return &clone
}

func cloneRun(r *storage.Run) *storage.Run {
	clone := *r
	clone.TriggerPayload = maps.Clone(r.TriggerPayload)
	clone.Outputs = maps.Clone(r.Outputs)
	return &clone
}

func cloneNodeRun(nr *storage.NodeRun) *storage.NodeRun {
	clone := *nr
	clone.Input = maps.Clone(nr.Input)
	clone.Output = maps.Clone(nr.Output)
	clone.Error = maps.Clone(nr.Error)
	return &clone
}
