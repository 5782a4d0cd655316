//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides OpenAI-compatible model implementations.
package openai

import (
	openaiopt "github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

// options contains configuration options for creating a Model.
type options struct {
	// API key for the OpenAI client.
	APIKey string
	// Base URL for the OpenAI client. Optional for OpenAI-compatible APIs.
	BaseURL string
	// Options for the HTTP client.
	HTTPClientOptions []model.HTTPClientOption
	// Options for the OpenAI client.
	OpenAIOptions []openaiopt.RequestOption
	// Extra fields to be added to the HTTP request body.
	ExtraFields map[string]any
}

var defaultOptions = options{}

// Option configures the OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		opts.APIKey = key
	}
}

// WithBaseURL sets the base URL for OpenAI-compatible providers.
func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.BaseURL = url
	}
}

// WithHTTPClientOptions sets options for the underlying HTTP client.
func WithHTTPClientOptions(hopts ...model.HTTPClientOption) Option {
	return func(opts *options) {
		opts.HTTPClientOptions = append(opts.HTTPClientOptions, hopts...)
	}
}

// WithOpenAIOptions appends raw openai-go request options.
func WithOpenAIOptions(oopts ...openaiopt.RequestOption) Option {
	return func(opts *options) {
		opts.OpenAIOptions = append(opts.OpenAIOptions, oopts...)
	}
}

// WithExtraFields adds extra fields to every request body.
func WithExtraFields(fields map[string]any) Option {
	return func(opts *options) {
		opts.ExtraFields = fields
	}
}
