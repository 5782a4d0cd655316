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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/artifact/inmemory"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/fileref"
	storeinmem "trpc.group/trpc-go/trpc-flow-go/storage/inmemory"
)

func TestFileSaveUploadsTextContent(t *testing.T) {
	svc := inmemory.NewService("")
	store := storeinmem.NewStore()
	reg := newTestRegistry(t)
	logs := &logCapture{}

	out, err := runBlock(t, reg, "file.save", &block.Input{
		NodeID:   "save",
		UserID:   "u1",
		Settings: map[string]any{
			"path":    "reports/{{trigger.day}}.txt",
			"content": "weather was {{fetch.text}}",
		},
		Trigger: map[string]any{"day": "monday"},
		Upstream: map[string]map[string]any{
			"fetch": {"text": "sunny"},
		},
	}, &block.RunContext{Artifacts: svc, Store: store, RunID: 7, Log: logs.fn()})
	require.NoError(t, err)

	files, ok := out["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	ref, ok := files[0].(map[string]any)
	require.True(t, ok)

	require.Equal(t, "reports/monday.txt", ref["path"])
	require.Equal(t, "memory", ref["storage"])
	require.Equal(t, "flow-files", ref["bucket"])
	require.Equal(t, int64(len("weather was sunny")), ref["size"])

	signed, ok := ref["signed_url"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(signed, "memory://flow-files/reports/monday.txt"), signed)
	require.NotEmpty(t, ref["signed_url_expires_at"])

	// The asset row landed and its id flowed back into the reference.
	id, ok := ref["id"].(int64)
	require.True(t, ok)
	asset, err := store.GetFileAsset(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(7), asset.RunID)
	require.Equal(t, "save", asset.NodeID)
	require.Equal(t, "u1", asset.UserID)
	require.Equal(t, "reports/monday.txt", asset.Path)

	// The object itself is retrievable.
	art, err := svc.Download(context.Background(), "", "reports/monday.txt")
	require.NoError(t, err)
	require.NotNil(t, art)
	require.Equal(t, "weather was sunny", string(art.Data))

	var sawUpload bool
	for _, e := range logs.all() {
		if strings.Contains(e.message, "file.save: uploaded") {
			sawUpload = true
		}
	}
	require.True(t, sawUpload)
}

func TestFileSaveContentVariants(t *testing.T) {
	reg := newTestRegistry(t)

	run := func(content any, contentType string) (fileref.Ref, *inmemory.Service) {
		svc := inmemory.NewService("")
		settings := map[string]any{"path": "out.bin", "content": content}
		if contentType != "" {
			settings["content_type"] = contentType
		}
		out, err := runBlock(t, reg, "file.save", &block.Input{
			Settings: settings,
		}, &block.RunContext{Artifacts: svc})
		require.NoError(t, err)
		files := out["files"].([]any)
		ref, ok := fileref.FromMap(files[0].(map[string]any))
		require.True(t, ok)
		return ref, svc
	}

	// Media descriptors decode their inline payload.
	media := fileref.NewMedia("audio", "audio/mpeg", []byte("MP3DATA"))
	ref, svc := run(media.Map(), "")
	require.Equal(t, "audio/mpeg", ref.ContentType)
	art, err := svc.Download(context.Background(), "", "out.bin")
	require.NoError(t, err)
	require.Equal(t, "MP3DATA", string(art.Data))

	// Plain maps serialize as JSON.
	ref, svc = run(map[string]any{"n": 1.0}, "")
	require.Equal(t, "application/json", ref.ContentType)
	art, err = svc.Download(context.Background(), "", "out.bin")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(art.Data))

	// An explicit content_type wins over the detected one.
	ref, _ = run("hello", "text/markdown")
	require.Equal(t, "text/markdown", ref.ContentType)
}

func TestFileSaveFallsBackToUpstreamReference(t *testing.T) {
	svc := inmemory.NewService("")
	reg := newTestRegistry(t)

	// Seed an object under the path an upstream output references.
	seeded, err := runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"path": "orig/report.txt", "content": "original bytes"},
	}, &block.RunContext{Artifacts: svc})
	require.NoError(t, err)
	seededRef := seeded["files"].([]any)[0].(map[string]any)

	out, err := runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"path": "copies/report.txt"},
		Upstream: map[string]map[string]any{
			"writer": {"files": []any{seededRef}},
		},
	}, &block.RunContext{Artifacts: svc})
	require.NoError(t, err)

	copied := out["files"].([]any)[0].(map[string]any)
	require.Equal(t, "copies/report.txt", copied["path"])

	art, err := svc.Download(context.Background(), "", "copies/report.txt")
	require.NoError(t, err)
	require.Equal(t, "original bytes", string(art.Data))
}

func TestFileSaveValidation(t *testing.T) {
	reg := newTestRegistry(t)
	svc := inmemory.NewService("")

	_, err := runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"path": "x", "content": "y"},
	}, nil)
	be := requireBlockError(t, err, block.ErrDependency)
	require.Equal(t, "file.save requires an object store", be.Message)

	_, err = runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"content": "y"},
	}, &block.RunContext{Artifacts: svc})
	be = requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "file.save requires 'path'", be.Message)

	_, err = runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"path": "x"},
	}, &block.RunContext{Artifacts: svc})
	be = requireBlockError(t, err, block.ErrConfig)
	require.Equal(t, "file.save requires 'content' or an upstream file reference", be.Message)

	// Path traversal is rejected.
	_, err = runBlock(t, reg, "file.save", &block.Input{
		Settings: map[string]any{"path": "../etc/passwd", "content": "y"},
	}, &block.RunContext{Artifacts: svc})
	requireBlockError(t, err, block.ErrConfig)
}

func TestStorageWriteEncodings(t *testing.T) {
	reg := newTestRegistry(t)

	write := func(settings map[string]any) (map[string]any, *inmemory.Service) {
		svc := inmemory.NewService("")
		out, err := runBlock(t, reg, "storage.write", &block.Input{
			NodeID:   "writer",
			Settings: settings,
		}, &block.RunContext{Artifacts: svc})
		require.NoError(t, err)
		return out, svc
	}

	// Strings render and store as text.
	out, svc := write(map[string]any{"path": "notes/hello.txt", "content": "hi there"})
	require.Equal(t, "memory://flow-files/notes/hello.txt", out["uri"])
	require.Equal(t, "flow-files", out["bucket"])
	require.Equal(t, "notes/hello.txt", out["path"])
	require.Equal(t, int64(len("hi there")), out["size"])
	art, err := svc.Download(context.Background(), "", "notes/hello.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", art.MimeType)

	// Maps store as JSON.
	_, svc = write(map[string]any{"path": "data.json", "content": map[string]any{"ok": true}})
	art, err = svc.Download(context.Background(), "", "data.json")
	require.NoError(t, err)
	require.Equal(t, "application/json", art.MimeType)
	require.JSONEq(t, `{"ok":true}`, string(art.Data))

	// as_json forces JSON encoding of scalars.
	_, svc = write(map[string]any{"path": "flag.json", "content": "plain", "as_json": true})
	art, err = svc.Download(context.Background(), "", "flag.json")
	require.NoError(t, err)
	require.Equal(t, "application/json", art.MimeType)
	require.Equal(t, `"plain"`, string(art.Data))

	// Numbers stringify as text.
	_, svc = write(map[string]any{"path": "n.txt", "content": 42.0})
	art, err = svc.Download(context.Background(), "", "n.txt")
	require.NoError(t, err)
	require.Equal(t, "42", string(art.Data))
}

func TestStorageWriteRecordsAssetRow(t *testing.T) {
	svc := inmemory.NewService("custom-bucket")
	store := storeinmem.NewStore()
	reg := newTestRegistry(t)

	out, err := runBlock(t, reg, "storage.write", &block.Input{
		NodeID:   "writer",
		Settings: map[string]any{"path": "a/b.txt", "content": "x"},
	}, &block.RunContext{Artifacts: svc, Store: store, RunID: 3})
	require.NoError(t, err)
	require.Equal(t, "memory://custom-bucket/a/b.txt", out["uri"])

	assets, err := store.ListFileAssets(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "writer", assets[0].NodeID)
	require.Equal(t, "a/b.txt", assets[0].Path)
	require.Empty(t, assets[0].SignedURL, "storage.write does not sign URLs")
}

func TestStorageWriteRequiresArtifacts(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := runBlock(t, reg, "storage.write", &block.Input{
		Settings: map[string]any{"path": "x", "content": "y"},
	}, nil)
	be := requireBlockError(t, err, block.ErrDependency)
	require.Equal(t, "storage.write requires an object store", be.Message)
}
