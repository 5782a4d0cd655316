//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package codeexecutor defines the contract for running small code snippets
// on behalf of agent nodes, with local and Docker-backed implementations in
// subpackages.
package codeexecutor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds a single execution when the spec does not set one.
const DefaultTimeout = 30 * time.Second

// Spec describes one snippet to execute.
type Spec struct {
	// Language names the interpreter: "python" or "bash" (plus common
	// aliases, see NormalizeLanguage).
	Language string
	// Code is the program text. Markdown fences are the caller's problem;
	// see ExtractCodeBlocks.
	Code string
	// Timeout bounds the execution. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of one execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Output returns stdout, falling back to stderr when stdout is empty.
// Agent loops use it as the observation text.
func (r Result) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Executor runs code snippets. Implementations are safe for concurrent use.
type Executor interface {
	// Name identifies the backend ("local", "docker").
	Name() string
	// Execute runs the snippet and returns its captured output. A non-zero
	// exit code is reported in the Result, not as an error; errors mean the
	// backend itself failed.
	Execute(ctx context.Context, spec Spec) (Result, error)
}

// NormalizeLanguage maps language aliases to their canonical name and
// reports whether the language is supported.
func NormalizeLanguage(lang string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python", "py", "python3":
		return "python", true
	case "bash", "sh", "shell":
		return "bash", true
	default:
		return "", false
	}
}

// fileExtension returns the source file extension for a canonical language.
func fileExtension(lang string) string {
	if lang == "bash" {
		return ".sh"
	}
	return ".py"
}

// CommandFor returns the interpreter argv for a canonical language and a
// source file path.
func CommandFor(lang, filePath string) []string {
	if lang == "bash" {
		return []string{"bash", filePath}
	}
	return []string{"python3", filePath}
}

// SourceFileName names the on-disk file for the i-th block of an execution.
func SourceFileName(lang string, index int) string {
	return fmt.Sprintf("code_%d%s", index, fileExtension(lang))
}

// CodeBlock is one fenced block extracted from model output.
type CodeBlock struct {
	Language string
	Code     string
}

var fencePattern = regexp.MustCompile("(?s)```([^\n]*)\n(.*?)```")

// ExtractCodeBlocks pulls fenced code blocks out of markdown-ish text.
// When the text carries no fences the whole text is returned as a single
// block with an empty language.
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []CodeBlock{{Code: trimmed}}
	}
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, CodeBlock{
			Language: strings.TrimSpace(m[1]),
			Code:     m[2],
		})
	}
	return blocks
}
