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
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/fileref"
	"trpc.group/trpc-go/trpc-flow-go/render"
	"trpc.group/trpc-go/trpc-flow-go/storage"
)

type fileSaveSettings struct {
	Path         string `json:"path" jsonschema:"description=Object key within the bucket; supports {{ }} expressions"`
	Content      any    `json:"content,omitempty" jsonschema:"description=Inline content: text, base64, data URL or media descriptor; omit to save the first upstream file"`
	ContentType  string `json:"content_type,omitempty"`
	Bucket       string `json:"bucket,omitempty" jsonschema:"description=Override the default bucket"`
	UsePublicURL bool   `json:"use_public_url,omitempty" jsonschema:"description=Also record a public URL when the bucket allows it"`
}

type filesOutput struct {
	Files []map[string]any `json:"files"`
}

// fileSaveBlock writes content to the object store and records a file asset
// row so the reference stays resolvable after the signed URL expires.
func fileSaveBlock() block.Block {
	return block.New("file.save",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			if rc.Artifacts == nil {
				return nil, block.Dependencyf("file.save requires an object store")
			}
			var s fileSaveSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Path == "" {
				return nil, block.Configf("file.save requires 'path'")
			}
			rctx := renderContext(in)
			path, berr := renderStorePath("file.save", s.Path, rctx)
			if berr != nil {
				return nil, berr
			}

			data, contentType, berr := resolveContent(ctx, in, rc, s.Content, rctx)
			if berr != nil {
				return nil, berr
			}
			if s.ContentType != "" {
				contentType = s.ContentType
			}
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			ref, berr := persistUpload(ctx, in, rc, s.Bucket, path, data, contentType, s.UsePublicURL)
			if berr != nil {
				return nil, berr
			}

			rc.Info(in.NodeID, "file.save: uploaded", map[string]any{
				"path":         ref.Path,
				"bucket":       ref.Bucket,
				"size":         ref.Size,
				"content_type": ref.ContentType,
			})
			return map[string]any{"files": []any{ref.Map()}}, nil
		},
		block.WithSummary("Save content to the object store and record a file asset"),
		block.WithSettings(fileSaveSettings{}),
		block.WithOutput(filesOutput{}),
	)
}

// renderStorePath renders and normalizes an object key setting.
func renderStorePath(blockType, raw string, rctx render.Context) (string, *block.Error) {
	rendered, err := strictRender(raw, rctx)
	if err != nil {
		return "", block.FromError(err)
	}
	path, perr := fileref.CleanRelPath(rendered)
	if perr != nil {
		return "", block.Configf("%s: %v", blockType, perr)
	}
	if path == "" {
		return "", block.Configf("%s: path resolves to empty", blockType)
	}
	return path, nil
}

// persistUpload uploads bytes, signs a read URL and records the file asset
// row, returning the reference blocks emit in their outputs.
func persistUpload(ctx context.Context, in *block.Input, rc *block.RunContext, bucket, path string, data []byte, contentType string, usePublicURL bool) (fileref.Ref, *block.Error) {
	obj, err := rc.Artifacts.UploadBytes(ctx, bucket, path, &artifact.Artifact{
		Data:     data,
		MimeType: contentType,
		Name:     pathBase(path),
	})
	if err != nil {
		return fileref.Ref{}, block.Remotef("upload %s: %v", path, err)
	}

	ref := fileref.Ref{
		Storage:     obj.Storage,
		Bucket:      obj.Bucket,
		Path:        obj.Path,
		ContentType: obj.ContentType,
		Size:        obj.Size,
	}
	ttl := rc.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	var expiresAt *time.Time
	if signed, serr := rc.Artifacts.CreateSignedURL(ctx, obj.Bucket, obj.Path, ttl); serr != nil {
		rc.Warn(in.NodeID, "signed URL unavailable for "+obj.Path, map[string]any{"error": serr.Error()})
	} else if signed != "" {
		ref.SignedURL = signed
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
		ref.SignedURLExpiresAt = t.Format(time.RFC3339)
	}
	if usePublicURL {
		ref.PublicURL = rc.Artifacts.PublicURL(obj.Bucket, obj.Path)
	}

	if rc.Store != nil {
		asset := &storage.FileAsset{
			RunID:              rc.RunID,
			NodeID:             in.NodeID,
			UserID:             in.UserID,
			Storage:            obj.Storage,
			Bucket:             obj.Bucket,
			Path:               obj.Path,
			ContentType:        obj.ContentType,
			Size:               obj.Size,
			SignedURL:          ref.SignedURL,
			SignedURLExpiresAt: expiresAt,
			PublicURL:          ref.PublicURL,
		}
		if cerr := rc.Store.CreateFileAsset(ctx, asset); cerr != nil {
			rc.Warn(in.NodeID, "asset record not persisted for "+obj.Path, map[string]any{"error": cerr.Error()})
		} else {
			ref.ID = asset.ID
		}
	}
	return ref, nil
}

// resolveContent turns the content setting into raw bytes. A nil setting
// falls back to the first file reference found in upstream outputs.
func resolveContent(ctx context.Context, in *block.Input, rc *block.RunContext, content any, rctx render.Context) ([]byte, string, *block.Error) {
	switch t := content.(type) {
	case nil:
		ref, ok := fileref.FindInOutputs(in.Upstream)
		if !ok {
			return nil, "", block.Configf("file.save requires 'content' or an upstream file reference")
		}
		data, mimeType, berr := downloadRef(ctx, rc, ref)
		if berr != nil {
			return nil, "", berr
		}
		if ref.ContentType != "" {
			mimeType = ref.ContentType
		}
		return data, mimeType, nil
	case string:
		rendered, err := strictRender(t, rctx)
		if err != nil {
			return nil, "", block.FromError(err)
		}
		data, mimeType, derr := fileref.DecodeContent(rendered)
		if derr != nil {
			return nil, "", block.Configf("file.save: %v", derr)
		}
		return data, mimeType, nil
	case map[string]any:
		if media, ok := fileref.MediaFromMap(t); ok {
			if media.BytesB64 != "" {
				data, derr := media.Bytes()
				if derr != nil {
					return nil, "", block.Configf("file.save: decode media payload: %v", derr)
				}
				return data, media.MIME, nil
			}
			data, mimeType, berr := fetchBytes(ctx, rc, media.URI)
			if berr != nil {
				return nil, "", berr
			}
			if media.MIME != "" {
				mimeType = media.MIME
			}
			return data, mimeType, nil
		}
		raw, derr := json.Marshal(t)
		if derr != nil {
			return nil, "", block.Configf("file.save: encode content: %v", derr)
		}
		return raw, "application/json", nil
	default:
		raw, derr := json.Marshal(t)
		if derr != nil {
			return nil, "", block.Configf("file.save: encode content: %v", derr)
		}
		return raw, "application/json", nil
	}
}

// downloadRef retrieves the bytes behind a file reference, preferring the
// local object store when the reference points at it.
func downloadRef(ctx context.Context, rc *block.RunContext, ref fileref.Ref) ([]byte, string, *block.Error) {
	if rc.Artifacts != nil && ref.Storage == rc.Artifacts.Name() {
		art, err := rc.Artifacts.Download(ctx, ref.Bucket, ref.Path)
		if err != nil {
			return nil, "", block.Remotef("download %s: %v", ref.Path, err)
		}
		if art != nil {
			return art.Data, art.MimeType, nil
		}
	}
	if url := ref.URL(); url != "" {
		return fetchBytes(ctx, rc, url)
	}
	return nil, "", block.Configf("file reference %q has no retrievable location", ref.Path)
}

// fetchBytes downloads a URL and returns the body with its declared MIME
// type (parameters stripped).
func fetchBytes(ctx context.Context, rc *block.RunContext, url string) ([]byte, string, *block.Error) {
	if url == "" {
		return nil, "", block.Configf("no URL to fetch")
	}
	resp, berr := sendRequest(ctx, rc, requestSpec{Method: http.MethodGet, URL: url})
	if berr != nil {
		return nil, "", berr
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", block.Timeoutf("GET %s timed out", url)
		}
		return nil, "", block.Remotef("read %s: %v", url, err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", block.Remotef("GET %s returned status %d", url, resp.StatusCode)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mt, _, merr := mime.ParseMediaType(mimeType); merr == nil {
		mimeType = mt
	}
	return raw, mimeType, nil
}

type storageWriteSettings struct {
	Path        string `json:"path" jsonschema:"description=Object key within the bucket; supports {{ }} expressions"`
	Content     any    `json:"content,omitempty"`
	AsJSON      bool   `json:"as_json,omitempty" jsonschema:"description=Force JSON encoding of the content value"`
	Bucket      string `json:"bucket,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type storageWriteOutput struct {
	URI    string `json:"uri"`
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// storageWriteBlock writes a value to the object store without the signing
// and reference plumbing of file.save. Maps and slices serialize as JSON,
// everything else as text.
func storageWriteBlock() block.Block {
	return block.New("storage.write",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			if rc.Artifacts == nil {
				return nil, block.Dependencyf("storage.write requires an object store")
			}
			var s storageWriteSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			if s.Path == "" {
				return nil, block.Configf("storage.write requires 'path'")
			}
			rctx := renderContext(in)
			path, berr := renderStorePath("storage.write", s.Path, rctx)
			if berr != nil {
				return nil, berr
			}

			data, contentType, berr := encodeStorageContent(s.Content, s.AsJSON, rctx)
			if berr != nil {
				return nil, berr
			}
			if s.ContentType != "" {
				contentType = s.ContentType
			}

			obj, uerr := rc.Artifacts.UploadBytes(ctx, s.Bucket, path, &artifact.Artifact{
				Data:     data,
				MimeType: contentType,
				Name:     pathBase(path),
			})
			if uerr != nil {
				return nil, block.Remotef("storage.write: upload %s: %v", path, uerr)
			}

			uri := obj.Storage + "://" + obj.Bucket + "/" + obj.Path
			if rc.Store != nil {
				asset := &storage.FileAsset{
					RunID:       rc.RunID,
					NodeID:      in.NodeID,
					UserID:      in.UserID,
					Storage:     obj.Storage,
					Bucket:      obj.Bucket,
					Path:        obj.Path,
					ContentType: obj.ContentType,
					Size:        obj.Size,
				}
				if cerr := rc.Store.CreateFileAsset(ctx, asset); cerr != nil {
					rc.Warn(in.NodeID, "storage.write: asset record not persisted", map[string]any{"error": cerr.Error()})
				}
			}
			rc.Info(in.NodeID, "storage.write: wrote "+uri, map[string]any{
				"path": obj.Path, "bucket": obj.Bucket, "size": obj.Size,
			})
			return map[string]any{
				"uri":    uri,
				"bucket": obj.Bucket,
				"path":   obj.Path,
				"size":   obj.Size,
			}, nil
		},
		block.WithSummary("Write a value to the object store"),
		block.WithSettings(storageWriteSettings{}),
		block.WithOutput(storageWriteOutput{}),
	)
}

// encodeStorageContent serializes the content value: forced or structural
// JSON, otherwise rendered text.
func encodeStorageContent(content any, asJSON bool, rctx render.Context) ([]byte, string, *block.Error) {
	if asJSON {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, "", block.Configf("storage.write: encode content: %v", err)
		}
		return raw, "application/json", nil
	}
	switch t := content.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, "", block.Configf("storage.write: encode content: %v", err)
		}
		return raw, "application/json", nil
	case string:
		rendered, err := strictRender(t, rctx)
		if err != nil {
			return nil, "", block.FromError(err)
		}
		return []byte(rendered), "text/plain; charset=utf-8", nil
	case nil:
		return []byte{}, "text/plain; charset=utf-8", nil
	default:
		return []byte(render.Stringify(t)), "text/plain; charset=utf-8", nil
	}
}
