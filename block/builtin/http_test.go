//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/block"
)

func TestHTTPRequestParsesJSONResponse(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"city":"Paris","temp":21.5}`))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	out, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{
			"method": "post",
			"url":    srv.URL,
			"body":   map[string]any{"q": "weather"},
		},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "application/json", gotContentType)
	require.JSONEq(t, `{"q":"weather"}`, string(gotBody))

	require.Equal(t, 200, out["status"])
	require.Equal(t, map[string]any{"city": "Paris", "temp": 21.5}, out["data"])
	headers, ok := out["headers"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "application/json", headers["content-type"])
}

func TestHTTPRequestTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	out, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{"url": srv.URL},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "not json", out["data"])
}

func TestHTTPRequestDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		w.Write([]byte{0x63, 0x61, 0x66, 0xE9}) // "café" in latin-1
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	out, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{"url": srv.URL},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "café", out["data"])
}

func TestHTTPRequestKeepsErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	out, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{"url": srv.URL},
	}, nil)
	require.NoError(t, err, "non-2xx statuses are data, not failures")
	require.Equal(t, 503, out["status"])
	require.Equal(t, map[string]any{"error": "overloaded"}, out["data"])
}

func TestHTTPRequestRendersURLHeadersAndBody(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	_, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{
			"url":     srv.URL + "/v1/{{trigger.resource}}?q={{trigger.q}}",
			"headers": map[string]any{"Authorization": "Bearer {{trigger.token}}"},
			"body":    "raw {{trigger.q}} payload",
		},
		Trigger: map[string]any{"resource": "weather", "q": "paris", "token": "s3cret"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "/v1/weather?q=paris", gotPath)
	require.Equal(t, "Bearer s3cret", gotAuth)
	require.Equal(t, "raw paris payload", gotBody)
}

func TestHTTPRequestRequiresURL(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := runBlock(t, reg, "http.request", &block.Input{}, nil)
	be := requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "http.request requires 'url'", be.Message)
}

func TestHTTPRequestFailsOnUndefinedURLExpression(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{"url": "https://example.com/{{missing.id}}"},
	}, nil)
	requireBlockError(t, err, block.ErrConfig)
}

func TestHTTPRequestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens here anymore

	reg := newTestRegistry(t)
	_, err := runBlock(t, reg, "http.request", &block.Input{
		Settings: map[string]any{"url": srv.URL},
	}, nil)
	requireBlockError(t, err, block.ErrRemote)
}

func TestWebGetResponseModes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)

	run := func(mode string) map[string]any {
		out, err := runBlock(t, reg, "web.get", &block.Input{
			Settings: map[string]any{"url": srv.URL, "response_mode": mode},
		}, nil)
		require.NoError(t, err, mode)
		return out
	}

	out := run("auto")
	require.Equal(t, "json", out["response_mode"])
	require.Equal(t, map[string]any{"n": 1.0}, out["data"])
	require.Equal(t, map[string]any{"n": 1.0}, out["data_json"])

	out = run("json")
	require.Equal(t, "json", out["response_mode"])

	out = run("text")
	require.Equal(t, "text", out["response_mode"])
	require.Equal(t, `{"n":1}`, out["data"])
	require.Equal(t, `{"n":1}`, out["data_text"])

	out = run("bytes")
	require.Equal(t, "bytes", out["response_mode"])
	require.Equal(t, []byte(`{"n":1}`), out["data"])

	_, err := runBlock(t, reg, "web.get", &block.Input{
		Settings: map[string]any{"url": srv.URL, "response_mode": "xml"},
	}, nil)
	be := requireBlockError(t, err, block.ErrConfig)
	require.Contains(t, be.Message, `unknown response_mode "xml"`)
}

func TestWebGetJSONModeFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	out, err := runBlock(t, reg, "web.get", &block.Input{
		Settings: map[string]any{"url": srv.URL, "response_mode": "json"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "text", out["response_mode"])
	require.Equal(t, "<html>hi</html>", out["data"])
}

func TestWebGetRedirectHandling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusFound)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := newTestRegistry(t)

	// Redirects are followed when the setting is unset.
	out, err := runBlock(t, reg, "web.get", &block.Input{
		Settings: map[string]any{"url": srv.URL + "/hop"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, out["status"])
	require.Equal(t, "landed", out["data"])

	// follow_redirects=false surfaces the redirect itself.
	out, err = runBlock(t, reg, "web.get", &block.Input{
		Settings: map[string]any{"url": srv.URL + "/hop", "follow_redirects": false},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 302, out["status"])
	headers := out["headers"].(map[string]any)
	require.Equal(t, "/target", headers["location"])
}

func TestWebGetTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	_, err := runBlock(t, reg, "web.get", &block.Input{
		Settings: map[string]any{"url": srv.URL, "timeout_seconds": 0.05},
	}, nil)
	requireBlockError(t, err, block.ErrTimeout)
}

func TestWebGetLogsRequestAndResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	logs := &logCapture{}
	_, err := runBlock(t, reg, "web.get", &block.Input{
		NodeID:   "fetch",
		Settings: map[string]any{"url": srv.URL},
	}, &block.RunContext{Log: logs.fn()})
	require.NoError(t, err)

	entries := logs.all()
	require.Len(t, entries, 2)
	require.Equal(t, "web.get: sending GET "+srv.URL, entries[0].message)
	require.Equal(t, "fetch", entries[0].nodeID)
	require.Equal(t, "web.get: received 200", entries[1].message)
	require.Equal(t, 200, entries[1].data["status"])
}

func TestFlattenHeaderJoinsValues(t *testing.T) {
	h := http.Header{}
	h.Add("X-Multi", "a")
	h.Add("X-Multi", "b")
	h.Set("Content-Type", "text/plain")
	got := flattenHeader(h)
	require.Equal(t, "a, b", got["x-multi"])
	require.Equal(t, "text/plain", got["content-type"])
}
