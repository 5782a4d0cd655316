//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides Gemini model implementations backed by the
// google genai SDK.
package gemini

import (
	"google.golang.org/genai"
)

// options contains configuration options for creating a Model.
type options struct {
	// geminiClientConfig for building the genai client.
	geminiClientConfig *genai.ClientConfig
}

var defaultOptions = options{
	geminiClientConfig: &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	},
}

// Option configures the Gemini model.
type Option func(*options)

// WithAPIKey sets the Gemini API key.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		cfg := *opts.geminiClientConfig
		cfg.APIKey = key
		opts.geminiClientConfig = &cfg
	}
}

// WithGeminiClientConfig sets the ClientConfig used for client
// initialization, replacing any prior configuration.
func WithGeminiClientConfig(c *genai.ClientConfig) Option {
	return func(opts *options) {
		opts.geminiClientConfig = c
	}
}
