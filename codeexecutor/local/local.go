//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package local provides a code executor that runs snippets directly on the
// host by writing them to a temporary directory and invoking the matching
// interpreter. It offers no isolation; use the docker backend when the code
// is untrusted.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
)

// Compile-time check that Executor implements codeexecutor.Executor.
var _ codeexecutor.Executor = (*Executor)(nil)

// Executor runs code on the local host.
type Executor struct {
	workDir string
	timeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkDir pins executions to a fixed directory instead of a fresh
// temporary directory per call.
func WithWorkDir(dir string) Option {
	return func(e *Executor) { e.workDir = dir }
}

// WithTimeout sets the default per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// New creates a local Executor.
func New(opts ...Option) *Executor {
	e := &Executor{timeout: codeexecutor.DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements codeexecutor.Executor.
func (e *Executor) Name() string { return "local" }

// Execute implements codeexecutor.Executor.
func (e *Executor) Execute(ctx context.Context, spec codeexecutor.Spec) (codeexecutor.Result, error) {
	lang, ok := codeexecutor.NormalizeLanguage(spec.Language)
	if !ok {
		return codeexecutor.Result{}, fmt.Errorf("unsupported language: %q", spec.Language)
	}

	workDir, cleanup, err := e.prepareWorkDir()
	if err != nil {
		return codeexecutor.Result{}, err
	}
	defer cleanup()

	filePath := filepath.Join(workDir, codeexecutor.SourceFileName(lang, 0))
	mode := os.FileMode(0o644)
	if lang == "bash" {
		mode = 0o755
	}
	if err := os.WriteFile(filePath, []byte(spec.Code), mode); err != nil {
		return codeexecutor.Result{}, fmt.Errorf("write code file: %w", err)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := codeexecutor.CommandFor(lang, filePath)
	// #nosec G204 -- interpreter and path are controlled by us
	cmd := exec.CommandContext(tctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := codeexecutor.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(tctx.Err(), context.DeadlineExceeded),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if res.TimedOut {
			res.ExitCode = -1
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", argv[0], runErr)
	}
	return res, nil
}

func (e *Executor) prepareWorkDir() (string, func(), error) {
	if e.workDir != "" {
		if err := os.MkdirAll(e.workDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create work directory: %w", err)
		}
		return e.workDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "codeexec_")
	if err != nil {
		return "", nil, fmt.Errorf("create temp directory: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
