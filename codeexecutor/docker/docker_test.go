//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/codeexecutor"
)

const testCID = "cid"

// fakeDocker builds a docker client bound to an httptest server.
func fakeDocker(t *testing.T, h http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+parsed.Host),
		client.WithVersion("1.46"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cli.Close()
		srv.Close()
	})
	return cli
}

// writeHijackStream upgrades the connection and emits a raw docker
// multiplexed stream carrying the given stdout/stderr payloads.
func writeHijackStream(t *testing.T, conn net.Conn, buf *bufio.ReadWriter, stdout, stderr string) {
	t.Helper()
	defer conn.Close()
	_, _ = buf.WriteString("HTTP/1.1 101 UPGRADED\r\n" +
		"Content-Type: application/vnd.docker.raw-stream\r\n" +
		"Connection: Upgrade\r\nUpgrade: tcp\r\n\r\n")
	_ = buf.Flush()
	if stdout != "" {
		_, _ = stdcopy.NewStdWriter(conn, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		_, _ = stdcopy.NewStdWriter(conn, stdcopy.Stderr).Write([]byte(stderr))
	}
}

func TestExecuteRunsSnippet(t *testing.T) {
	var copied, execCmd []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/containers/"+testCID+"/archive"):
			copied = append(copied, r.URL.Query().Get("path"))
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/"+testCID+"/exec"):
			var payload struct {
				Cmd []string `json:"Cmd"`
			}
			require.NoError(t, decodeJSONBody(r, &payload))
			execCmd = payload.Cmd
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Id":"e1"}`))
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/exec/e1/start"):
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, buf, err := hj.Hijack()
			require.NoError(t, err)
			writeHijackStream(t, conn, buf, "57\n", "")
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/exec/e1/json"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ExitCode":0,"Running":false}`))
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}

	cli := fakeDocker(t, handler)
	e, err := New(context.Background(), WithClient(cli), WithContainerID(testCID))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), codeexecutor.Spec{
		Language: "python",
		Code:     "print(19*3)",
	})
	require.NoError(t, err)
	require.Equal(t, "57\n", res.Stdout)
	require.Zero(t, res.ExitCode)

	require.Equal(t, []string{workspaceDir}, copied)
	require.Equal(t, []string{"python3", workspaceDir + "/code_0.py"}, execCmd)
}

func TestExecuteReportsExitCodeAndStderr(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/archive"):
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/"+testCID+"/exec"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Id":"e1"}`))
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/exec/e1/start"):
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, buf, err := hj.Hijack()
			require.NoError(t, err)
			writeHijackStream(t, conn, buf, "", "Traceback: boom\n")
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/exec/e1/json"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ExitCode":1,"Running":false}`))
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}

	cli := fakeDocker(t, handler)
	e, err := New(context.Background(), WithClient(cli), WithContainerID(testCID))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), codeexecutor.Spec{
		Language: "bash",
		Code:     "exit 1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ExitCode)
	require.Contains(t, res.Stderr, "boom")
	require.Equal(t, res.Stderr, res.Output())
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	cli := fakeDocker(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
	})
	e, err := New(context.Background(), WithClient(cli), WithContainerID(testCID))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), codeexecutor.Spec{Language: "lisp", Code: "()"})
	require.Error(t, err)
}

func TestNewCreatesAndCloseRemovesContainer(t *testing.T) {
	var created, started, removed bool
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/images/create"):
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/containers/create"):
			created = true
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"Id":"` + testCID + `","Warnings":[]}`))
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/"+testCID+"/start"):
			started = true
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/containers/"+testCID):
			removed = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}

	cli := fakeDocker(t, handler)
	e, err := New(context.Background(), WithClient(cli), WithImage("python:3-slim"))
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, started)

	require.NoError(t, e.Close())
	require.True(t, removed)
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
