//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package docker provides a code executor that runs snippets inside a
// long-lived Docker container. The container is created without network
// access and with bounded memory and CPU; each execution copies the code in
// via the archive endpoint and runs it through the exec API.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	tcontainer "github.com/docker/docker/api/types/container"
	timage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
)

// Compile-time check that Executor implements codeexecutor.Executor.
var _ codeexecutor.Executor = (*Executor)(nil)

const (
	defaultImage        = "python:3-slim"
	containerNamePrefix = "trpc.go.flow-code-exec-"
	workspaceDir        = "/workspace"

	memoryLimitBytes = 256 << 20
	nanoCPUs         = 1_000_000_000 // one CPU
)

// Executor runs code inside a Docker container.
type Executor struct {
	cli         client.APIClient
	image       string
	timeout     time.Duration
	containerID string
	owned       bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithImage sets the container image. The default is python:3-slim.
func WithImage(image string) Option {
	return func(e *Executor) { e.image = image }
}

// WithTimeout sets the default per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithClient injects a Docker API client. Mostly for tests.
func WithClient(cli client.APIClient) Option {
	return func(e *Executor) { e.cli = cli }
}

// WithContainerID attaches to an existing running container instead of
// creating one. The executor will not remove it on Close.
func WithContainerID(id string) Option {
	return func(e *Executor) { e.containerID = id }
}

// New connects to the Docker daemon and ensures an execution container is
// running. Callers should Close the executor to release it.
func New(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{
		image:   defaultImage,
		timeout: codeexecutor.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cli == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		e.cli = cli
	}
	if e.containerID == "" {
		if err := e.startContainer(ctx); err != nil {
			_ = e.cli.Close()
			return nil, err
		}
		e.owned = true
	}
	return e, nil
}

// Name implements codeexecutor.Executor.
func (e *Executor) Name() string { return "docker" }

func (e *Executor) startContainer(ctx context.Context) error {
	// Best-effort pull so a missing local image behaves like docker run.
	if rc, err := e.cli.ImagePull(ctx, e.image, timage.PullOptions{}); err == nil {
		_, _ = io.Copy(io.Discard, rc)
		_ = rc.Close()
	}
	created, err := e.cli.ContainerCreate(ctx,
		&tcontainer.Config{
			Image:      e.image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: workspaceDir,
		},
		&tcontainer.HostConfig{
			NetworkMode: "none",
			Resources: tcontainer.Resources{
				Memory:   memoryLimitBytes,
				NanoCPUs: nanoCPUs,
			},
		},
		nil, nil, containerNamePrefix+uuid.New().String(),
	)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := e.cli.ContainerStart(ctx, created.ID, tcontainer.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	e.containerID = created.ID
	return nil
}

// Execute implements codeexecutor.Executor.
func (e *Executor) Execute(ctx context.Context, spec codeexecutor.Spec) (codeexecutor.Result, error) {
	lang, ok := codeexecutor.NormalizeLanguage(spec.Language)
	if !ok {
		return codeexecutor.Result{}, fmt.Errorf("unsupported language: %q", spec.Language)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fileName := codeexecutor.SourceFileName(lang, 0)
	if err := e.putFile(tctx, fileName, []byte(spec.Code)); err != nil {
		return codeexecutor.Result{}, err
	}

	argv := codeexecutor.CommandFor(lang, path.Join(workspaceDir, fileName))
	start := time.Now()
	stdout, stderr, exitCode, err := e.execCmd(tctx, argv)
	res := codeexecutor.Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
		TimedOut: errors.Is(tctx.Err(), context.DeadlineExceeded),
	}
	if err != nil && !res.TimedOut {
		return res, err
	}
	return res, nil
}

// putFile ships one file into the workspace via the archive endpoint.
func (e *Executor) putFile(ctx context.Context, name string, content []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("tar write: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar close: %w", err)
	}
	err := e.cli.CopyToContainer(ctx, e.containerID, workspaceDir,
		bytes.NewReader(buf.Bytes()), tcontainer.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("copy code to container: %w", err)
	}
	return nil
}

func (e *Executor) execCmd(ctx context.Context, argv []string) (string, string, int, error) {
	ex, err := e.cli.ContainerExecCreate(ctx, e.containerID, tcontainer.ExecOptions{
		Cmd:          argv,
		WorkingDir:   workspaceDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec create: %w", err)
	}
	hj, err := e.cli.ContainerExecAttach(ctx, ex.ID, tcontainer.ExecStartOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec attach: %w", err)
	}
	defer hj.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, hj.Reader); err != nil {
		return stdout.String(), stderr.String(), 0, fmt.Errorf("exec stream: %w", err)
	}
	insp, err := e.cli.ContainerExecInspect(ctx, ex.ID)
	if err != nil {
		return stdout.String(), stderr.String(), 0, fmt.Errorf("exec inspect: %w", err)
	}
	return stdout.String(), stderr.String(), insp.ExitCode, nil
}

// Close removes the container when this executor created it and closes the
// client connection.
func (e *Executor) Close() error {
	var errs []error
	if e.owned && e.containerID != "" {
		err := e.cli.ContainerRemove(context.Background(), e.containerID,
			tcontainer.RemoveOptions{Force: true})
		if err != nil {
			errs = append(errs, fmt.Errorf("remove container: %w", err))
		}
		e.containerID = ""
	}
	if err := e.cli.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
