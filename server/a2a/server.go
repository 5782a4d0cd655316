//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package a2a exposes the workflow assistant over the agent-to-agent
// protocol so other agents can request workflow graphs by prompt.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-a2a-go/auth"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	a2a "trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"trpc.group/trpc-go/trpc-flow-go/assistant"
	"trpc.group/trpc-go/trpc-flow-go/log"
)

const userIDHeader = "X-User-ID"

const agentPath = "assistant"

// Server mounts the workflow assistant as an A2A endpoint under
// /a2a/assistant/.
type Server struct {
	host    string
	handler http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithHost sets the advertised host for the agent card URL.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// New builds the A2A surface over the assistant service.
func New(svc *assistant.Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("assistant service is required")
	}
	s := &Server{host: "localhost:8000"}
	for _, opt := range opts {
		opt(s)
	}

	processor := &messageProcessor{assistant: svc}
	taskManager, err := taskmanager.NewMemoryTaskManager(processor, taskmanager.WithMaxHistoryLength(1))
	if err != nil {
		return nil, fmt.Errorf("create task manager: %w", err)
	}
	a2aServer, err := a2a.NewA2AServer(s.agentCard(), taskManager, a2a.WithAuthProvider(&userAuthProvider{}))
	if err != nil {
		return nil, fmt.Errorf("create a2a server: %w", err)
	}

	mux := http.NewServeMux()
	prefix := fmt.Sprintf("/a2a/%s/", agentPath)
	mux.Handle(prefix, a2aServer.Handler())
	log.Infof("a2a: workflow assistant mounted at %s", prefix)
	s.handler = mux
	return s, nil
}

// Handler returns the http handler for the mounted endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) agentCard() a2a.AgentCard {
	desc := "Turns a natural-language prompt into a validated workflow and returns its graph as JSON."
	name := "workflow-assistant"
	return a2a.AgentCard{
		Name:        name,
		Description: desc,
		URL:         fmt.Sprintf("http://%s/a2a/%s/", s.host, agentPath),
		Capabilities: a2a.AgentCapabilities{
			Streaming: boolPtr(false),
		},
		Skills: []a2a.AgentSkill{
			{
				Name:        name,
				Description: &desc,
				InputModes:  []string{"text"},
				OutputModes: []string{"text"},
				Tags:        []string{"workflow"},
			},
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
}

// userAuthProvider identifies callers by the X-User-ID header, minting an
// anonymous id when absent.
type userAuthProvider struct{}

// Authenticate implements auth.AuthProvider.
func (p *userAuthProvider) Authenticate(r *http.Request) (*auth.User, error) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		userID = uuid.New().String()
	}
	return &auth.User{ID: userID}, nil
}

// messageProcessor answers prompt messages with the created workflow's
// graph document.
type messageProcessor struct {
	assistant *assistant.Service
}

// ProcessMessage is the main entry point for processing messages.
func (m *messageProcessor) ProcessMessage(
	ctx context.Context,
	message protocol.Message,
	options taskmanager.ProcessOptions,
	handler taskmanager.TaskHandler,
) (*taskmanager.MessageProcessingResult, error) {
	user, ok := ctx.Value(auth.AuthUserKey).(*auth.User)
	if !ok {
		return nil, errors.New("userID is required")
	}

	prompt := extractTextFromMessage(message)
	if prompt == "" {
		reply := protocol.NewMessage(protocol.MessageRoleAgent, []protocol.Part{
			protocol.NewTextPart("input is empty!"),
		})
		return &taskmanager.MessageProcessingResult{Result: &reply}, nil
	}

	wf, cached, err := m.assistant.CreateWorkflow(ctx, prompt, user.ID)
	if err != nil {
		log.Errorf("a2a: create workflow from prompt: %v", err)
		return nil, err
	}
	content := fmt.Sprintf("Created workflow %d (%s, cached=%t):\n%s", wf.ID, wf.Name, cached, wf.Graph)
	reply := protocol.NewMessage(protocol.MessageRoleAgent, []protocol.Part{protocol.NewTextPart(content)})
	return &taskmanager.MessageProcessingResult{Result: &reply}, nil
}

// extractTextFromMessage extracts the text content from a message.
func extractTextFromMessage(message protocol.Message) string {
	for _, part := range message.Parts {
		switch textPart := part.(type) {
		case *protocol.TextPart:
			return textPart.Text
		case protocol.TextPart:
			return textPart.Text
		}
	}
	return ""
}

func boolPtr(b bool) *bool {
	return &b
}
