//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package assistant turns natural-language prompts into workflow graphs.
// A chat model drafts the graph JSON against the block catalog; the result
// is validated like any authored graph and optionally persisted as a
// workflow. Without a model the service degrades to a deterministic
// start→show graph carrying the prompt.
package assistant

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/graph"
	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

// cacheCapacity bounds the prompt→workflow LRU cache.
const cacheCapacity = 64

// previewLimit bounds prompt previews in logs and descriptions.
const previewLimit = 200

// ErrEmptyPrompt rejects requests with no prompt text.
var ErrEmptyPrompt = errors.New("assistant: prompt is required")

// Envelope is one event of a streamed generation, serialized to SSE.
type Envelope map[string]any

// Envelope types emitted by Stream.
const (
	TypeStatus          = "status"
	TypeAgentEvent      = "agent_event"
	TypeFinalGraph      = "final_graph"
	TypeWorkflowCreated = "workflow_created"
	TypeError           = "error"
)

// Service generates workflow graphs from prompts.
type Service struct {
	store    storage.Store
	registry *block.Registry
	model    model.Model

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List
}

type cacheEntry struct {
	prompt     string
	workflowID int64
}

// Option configures a Service.
type Option func(*Service)

// WithModel sets the chat model drafting graphs. Without one the service
// returns the deterministic fallback graph.
func WithModel(m model.Model) Option {
	return func(s *Service) { s.model = m }
}

// New builds an assistant Service over a store and the block registry.
func New(store storage.Store, registry *block.Registry, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateGraph drafts a workflow graph for the prompt and validates it
// against the block registry. Model failures and unparseable output fall
// back to a minimal start→show graph; a drafted graph that fails
// validation is an error the caller surfaces.
func (s *Service) GenerateGraph(ctx context.Context, prompt string) (json.RawMessage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	raw := s.draftGraph(ctx, prompt)
	g, err := graph.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("assistant: generated graph: %w", err)
	}
	if err := graph.Validate(g, s.registry); err != nil {
		return nil, fmt.Errorf("assistant: generated graph: %w", err)
	}
	return raw, nil
}

// CreateWorkflow generates a graph for the prompt and persists it as a
// workflow. Repeated prompts hit a bounded LRU cache and return the
// previously created workflow; the second result reports a cache hit.
func (s *Service) CreateWorkflow(ctx context.Context, prompt, userID string) (*storage.Workflow, bool, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, false, ErrEmptyPrompt
	}
	if id, ok := s.cachedWorkflow(prompt); ok {
		wf, err := s.store.GetWorkflow(ctx, id)
		if err == nil {
			log.Infof("assistant: cache hit for prompt, workflow %d", id)
			return wf, true, nil
		}
		// Stale entry, the workflow was deleted; regenerate.
		s.evict(prompt)
	}

	raw, err := s.GenerateGraph(ctx, prompt)
	if err != nil {
		return nil, false, err
	}
	name, description := s.summarize(ctx, prompt)
	wf := &storage.Workflow{
		UserID:      userID,
		Name:        name,
		Description: description,
		Graph:       raw,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, false, fmt.Errorf("assistant: persist workflow: %w", err)
	}
	s.remember(prompt, wf.ID)
	log.Infof("assistant: workflow %d created from prompt", wf.ID)
	return wf, false, nil
}

// Stream runs a generation and emits progress envelopes through emit. When
// create is set the final graph is persisted and a workflow_created
// envelope follows. Errors end the stream with an error envelope.
func (s *Service) Stream(ctx context.Context, prompt, userID string, create bool, emit func(Envelope)) {
	emit(Envelope{"type": TypeStatus, "stage": "starting"})
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		emit(Envelope{"type": TypeError, "message": ErrEmptyPrompt.Error()})
		return
	}

	emit(Envelope{"type": TypeStatus, "stage": "generating"})
	if s.model != nil {
		emit(Envelope{"type": TypeAgentEvent, "preview": "Designing workflow..."})
	}
	raw, err := s.GenerateGraph(ctx, prompt)
	if err != nil {
		emit(Envelope{"type": TypeError, "message": err.Error()})
		return
	}
	var graphDoc map[string]any
	if err := json.Unmarshal(raw, &graphDoc); err != nil {
		emit(Envelope{"type": TypeError, "message": err.Error()})
		return
	}
	emit(Envelope{"type": TypeFinalGraph, "graph": graphDoc})

	if !create {
		return
	}
	name, description := s.summarize(ctx, prompt)
	wf := &storage.Workflow{
		UserID:      userID,
		Name:        name,
		Description: description,
		Graph:       raw,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		emit(Envelope{"type": TypeError, "message": fmt.Sprintf("persist_failed: %v", err)})
		return
	}
	s.remember(prompt, wf.ID)
	emit(Envelope{"type": TypeWorkflowCreated, "id": wf.ID})
}

// draftGraph asks the model for a graph document, falling back to the
// deterministic start→show graph when no model is configured or its output
// yields no JSON object.
func (s *Service) draftGraph(ctx context.Context, prompt string) json.RawMessage {
	if s.model == nil {
		log.Warnf("assistant: no model configured, returning fallback graph")
		return fallbackGraph(prompt)
	}
	resp, err := s.model.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(s.designerPrompt()),
			model.NewUserMessage(prompt),
		},
	})
	if err != nil {
		log.Warnf("assistant: model call failed, returning fallback graph: %v", err)
		return fallbackGraph(prompt)
	}
	raw, err := extractJSONObject(resp.Text)
	if err != nil {
		log.Warnf("assistant: %v, returning fallback graph", err)
		return fallbackGraph(prompt)
	}
	return raw
}

// designerPrompt appends the live block catalog to the system prompt so the
// model only uses registered types.
func (s *Service) designerPrompt() string {
	var b strings.Builder
	b.WriteString(designerSystemPrompt)
	b.WriteString("\n\nBlock catalog:\n")
	for _, spec := range s.registry.Specs() {
		b.WriteString("- ")
		b.WriteString(spec.Type)
		if spec.Summary != "" {
			b.WriteString(" — ")
			b.WriteString(spec.Summary)
		}
		if spec.ToolCompatible {
			b.WriteString(" (tool; attach to agent.react with a tool edge)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// summarize asks the model for a short title and description, degrading to
// prompt-derived text. Naming never fails a creation.
func (s *Service) summarize(ctx context.Context, prompt string) (name, description string) {
	name = truncate(prompt, 60)
	description = "Seeded from assistant: " + truncate(prompt, previewLimit)
	if s.model == nil {
		return name, description
	}
	resp, err := s.model.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(summarizeSystemPrompt),
			model.NewUserMessage(prompt),
		},
	})
	if err != nil {
		return name, description
	}
	raw, err := extractJSONObject(resp.Text)
	if err != nil {
		return name, description
	}
	var parsed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return name, description
	}
	if t := strings.TrimSpace(parsed.Title); t != "" {
		name = t
	}
	if d := strings.TrimSpace(parsed.Description); d != "" {
		description = d
	}
	return name, description
}

// cachedWorkflow looks up the prompt in the LRU, refreshing its recency.
func (s *Service) cachedWorkflow(prompt string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.cache[prompt]
	if !ok {
		return 0, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*cacheEntry).workflowID, true
}

// remember records a prompt→workflow binding, evicting the oldest entry
// past capacity.
func (s *Service) remember(prompt string, workflowID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.cache[prompt]; ok {
		el.Value.(*cacheEntry).workflowID = workflowID
		s.order.MoveToFront(el)
		return
	}
	s.cache[prompt] = s.order.PushFront(&cacheEntry{prompt: prompt, workflowID: workflowID})
	for len(s.cache) > cacheCapacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.cache, oldest.Value.(*cacheEntry).prompt)
	}
}

func (s *Service) evict(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.cache[prompt]; ok {
		s.order.Remove(el)
		delete(s.cache, prompt)
	}
}

// fallbackGraph is the deterministic graph used when no model output is
// available: it surfaces the prompt through a show node.
func fallbackGraph(prompt string) json.RawMessage {
	doc := map[string]any{
		"nodes": []any{
			map[string]any{
				"id":       "start",
				"type":     "start",
				"settings": map[string]any{"payload": map[string]any{"prompt": prompt}},
			},
			map[string]any{
				"id":       "show",
				"type":     "show",
				"settings": map[string]any{"template": "Created from prompt: {{ start.prompt }}"},
			},
		},
		"edges": []any{
			map[string]any{"id": "e1", "from": "start", "to": "show"},
		},
	}
	raw, _ := json.Marshal(doc)
	return raw
}

var jsonFenceRe = regexp.MustCompile("(?is)```json\\s*([\\s\\S]*?)```")

// extractJSONObject pulls a JSON object out of model output: the whole
// text, then a ```json fence, then the outermost brace span.
func extractJSONObject(text string) (json.RawMessage, error) {
	candidates := []string{strings.TrimSpace(text)}
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	for _, c := range candidates {
		if c == "" || c[0] != '{' {
			continue
		}
		var probe map[string]any
		if err := json.Unmarshal([]byte(c), &probe); err == nil {
			return json.RawMessage(c), nil
		}
	}
	return nil, errors.New("no JSON object in model output")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return strings.TrimSpace(s[:limit]) + "…"
}
