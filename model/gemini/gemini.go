//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

// Model implements the model.Model interface for the Gemini API.
type Model struct {
	client *genai.Client
	name   string
}

// New creates a new Gemini-like model.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	client, err := genai.NewClient(ctx, o.geminiClientConfig)
	if err != nil {
		return nil, err
	}
	return &Model{
		client: client,
		name:   name,
	}, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name: m.name,
	}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	contents := convertMessages(request.Messages)
	config := buildChatConfig(request)

	completion, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, err
	}

	response := &model.Response{
		ID:    completion.ResponseID,
		Model: completion.ModelVersion,
	}
	response.Text, response.FinishReason = extractText(completion.Candidates)
	if completion.UsageMetadata != nil {
		response.Usage = &model.Usage{
			PromptTokens:     int(completion.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(completion.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(completion.UsageMetadata.TotalTokenCount),
		}
	}
	return response, nil
}

// convertMessages converts our Message format to Gemini contents. System
// and user messages map to the user role, assistant to the model role.
func convertMessages(messages []model.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := genai.RoleUser
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		result = append(result, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return result
}

// buildChatConfig converts our Request to a Gemini request config.
func buildChatConfig(request *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if request.MaxTokens != nil {
		config.MaxOutputTokens = int32(*request.MaxTokens)
	}
	if request.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*request.Temperature))
	}
	if request.TopP != nil {
		config.TopP = genai.Ptr(float32(*request.TopP))
	}
	if len(request.Stop) > 0 {
		config.StopSequences = request.Stop
	}
	return config
}

func extractText(candidates []*genai.Candidate) (string, string) {
	var (
		textBuilder  strings.Builder
		finishReason string
	)
	for _, candidate := range candidates {
		if candidate.FinishReason != "" {
			finishReason = string(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				textBuilder.WriteString(part.Text)
			}
		}
	}
	return textBuilder.String(), finishReason
}
