//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"testing"

	openaigo "github.com/openai/openai-go"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		modelName string
		opts      []Option
	}{
		{
			name:      "valid openai model",
			modelName: "gpt-4o-mini",
			opts: []Option{
				WithAPIKey("test-key"),
			},
		},
		{
			name:      "valid model with base url",
			modelName: "custom-model",
			opts: []Option{
				WithAPIKey("test-key"),
				WithBaseURL("https://api.custom.com"),
			},
		},
		{
			name:      "empty api key",
			modelName: "gpt-4o-mini",
			opts: []Option{
				WithAPIKey(""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.modelName, tt.opts...)
			if m == nil {
				t.Fatal("expected model to be created, got nil")
			}

			o := options{}
			for _, opt := range tt.opts {
				opt(&o)
			}

			if m.name != tt.modelName {
				t.Errorf("expected model name %s, got %s", tt.modelName, m.name)
			}
			if m.apiKey != o.APIKey {
				t.Errorf("expected api key %s, got %s", o.APIKey, m.apiKey)
			}
			if m.baseURL != o.BaseURL {
				t.Errorf("expected base url %s, got %s", o.BaseURL, m.baseURL)
			}
			if got := m.Info().Name; got != tt.modelName {
				t.Errorf("Info().Name=%s want=%s", got, tt.modelName)
			}
		})
	}
}

func TestModel_GenContent_NilReq(t *testing.T) {
	m := New("test-model", WithAPIKey("test-key"))

	_, err := m.GenerateContent(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for nil request, got nil")
	}
	if err.Error() != "request cannot be nil" {
		t.Errorf("expected 'request cannot be nil', got %s", err.Error())
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("system content"),
		model.NewUserMessage("user content"),
		model.NewAssistantMessage("assistant content"),
		{Role: "unknown", Content: "fallback content"},
	}

	converted := convertMessages(msgs)
	if got, want := len(converted), len(msgs); got != want {
		t.Fatalf("converted len=%d want=%d", got, want)
	}

	roleChecks := []func(openaigo.ChatCompletionMessageParamUnion) bool{
		func(u openaigo.ChatCompletionMessageParamUnion) bool { return u.OfSystem != nil },
		func(u openaigo.ChatCompletionMessageParamUnion) bool { return u.OfUser != nil },
		func(u openaigo.ChatCompletionMessageParamUnion) bool { return u.OfAssistant != nil },
		func(u openaigo.ChatCompletionMessageParamUnion) bool { return u.OfUser != nil },
	}
	for i, u := range converted {
		if !roleChecks[i](u) {
			t.Fatalf("index %d: expected role variant not set", i)
		}
	}
}

func TestBuildChatRequest(t *testing.T) {
	m := New("gpt-4o-mini", WithExtraFields(map[string]any{"custom": true}))

	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
		GenerationConfig: model.GenerationConfig{
			MaxTokens:   model.IntPtr(128),
			Temperature: model.Float64Ptr(0.2),
			TopP:        model.Float64Ptr(0.9),
			Stop:        []string{"Observation:"},
		},
	}

	chatRequest, opts := m.buildChatRequest(req)

	if got, want := string(chatRequest.Model), "gpt-4o-mini"; got != want {
		t.Errorf("model=%s want=%s", got, want)
	}
	if got := chatRequest.MaxCompletionTokens.Or(0); got != 128 {
		t.Errorf("max completion tokens=%d want=128", got)
	}
	if got := chatRequest.Temperature.Or(0); got != 0.2 {
		t.Errorf("temperature=%v want=0.2", got)
	}
	if got := chatRequest.TopP.Or(0); got != 0.9 {
		t.Errorf("top_p=%v want=0.9", got)
	}
	if got := chatRequest.Stop.OfString.Or(""); got != "Observation:" {
		t.Errorf("stop=%q want=%q", got, "Observation:")
	}
	if len(opts) != 1 {
		t.Errorf("expected one request option for extra fields, got %d", len(opts))
	}
}
