//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package fileref defines the portable file descriptors blocks pass to each
// other: object store references with signed URLs, and inline media.
package fileref

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ref is a portable reference to an object-storage blob. Blocks emit it in
// their outputs and downstream blocks detect it by shape.
type Ref struct {
	// ID is the file asset row backing the reference, when one exists.
	ID                 int64  `json:"id,omitempty"`
	Storage            string `json:"storage,omitempty"`
	Bucket             string `json:"bucket,omitempty"`
	Path               string `json:"path"`
	ContentType        string `json:"content_type,omitempty"`
	Size               int64  `json:"size,omitempty"`
	SignedURL          string `json:"signed_url,omitempty"`
	SignedURLExpiresAt string `json:"signed_url_expires_at,omitempty"`
	PublicURL          string `json:"public_url,omitempty"`
}

// Map converts the reference to the map form used in node outputs.
func (r Ref) Map() map[string]any {
	m := map[string]any{"path": r.Path}
	if r.ID > 0 {
		m["id"] = r.ID
	}
	if r.Storage != "" {
		m["storage"] = r.Storage
	}
	if r.Bucket != "" {
		m["bucket"] = r.Bucket
	}
	if r.ContentType != "" {
		m["content_type"] = r.ContentType
	}
	if r.Size > 0 {
		m["size"] = r.Size
	}
	if r.SignedURL != "" {
		m["signed_url"] = r.SignedURL
	}
	if r.SignedURLExpiresAt != "" {
		m["signed_url_expires_at"] = r.SignedURLExpiresAt
	}
	if r.PublicURL != "" {
		m["public_url"] = r.PublicURL
	}
	return m
}

// URL returns the best available location: signed first, then public.
func (r Ref) URL() string {
	if r.SignedURL != "" {
		return r.SignedURL
	}
	return r.PublicURL
}

// FromMap decodes a map into a Ref. A map qualifies when it carries a
// non-empty "path" plus at least one storage-identifying key.
func FromMap(m map[string]any) (Ref, bool) {
	path, _ := m["path"].(string)
	if path == "" {
		return Ref{}, false
	}
	var located bool
	for _, key := range []string{"storage", "bucket", "signed_url", "public_url"} {
		if s, ok := m[key].(string); ok && s != "" {
			located = true
			break
		}
	}
	if !located {
		return Ref{}, false
	}
	r := Ref{Path: path}
	r.ID = toInt64(m["id"])
	r.Storage, _ = m["storage"].(string)
	r.Bucket, _ = m["bucket"].(string)
	r.ContentType, _ = m["content_type"].(string)
	r.SignedURL, _ = m["signed_url"].(string)
	r.SignedURLExpiresAt, _ = m["signed_url_expires_at"].(string)
	r.PublicURL, _ = m["public_url"].(string)
	r.Size = toInt64(m["size"])
	return r, true
}

// Find walks a value depth-first and returns the first Ref-shaped map.
// Map keys are visited in sorted order so the result is deterministic.
func Find(v any) (Ref, bool) {
	switch t := v.(type) {
	case map[string]any:
		if r, ok := FromMap(t); ok {
			return r, true
		}
		for _, key := range sortedKeys(t) {
			if r, ok := Find(t[key]); ok {
				return r, true
			}
		}
	case []any:
		for _, item := range t {
			if r, ok := Find(item); ok {
				return r, true
			}
		}
	}
	return Ref{}, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

// Media is the inline descriptor audio and media blocks emit: content is
// carried base64-encoded so it survives JSON persistence.
type Media struct {
	Kind     string `json:"kind"`
	MIME     string `json:"mime"`
	BytesB64 string `json:"bytes_b64,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size"`
	URI      string `json:"uri,omitempty"`
}

// NewMedia builds a Media descriptor around raw bytes.
func NewMedia(kind, mime string, data []byte) Media {
	return Media{
		Kind:     kind,
		MIME:     mime,
		BytesB64: base64.StdEncoding.EncodeToString(data),
		Size:     int64(len(data)),
	}
}

// Map converts the descriptor to the map form used in node outputs.
func (m Media) Map() map[string]any {
	out := map[string]any{
		"kind": m.Kind,
		"mime": m.MIME,
		"size": m.Size,
	}
	if m.BytesB64 != "" {
		out["bytes_b64"] = m.BytesB64
	}
	if m.Filename != "" {
		out["filename"] = m.Filename
	}
	if m.URI != "" {
		out["uri"] = m.URI
	}
	return out
}

// Bytes decodes the inline payload.
func (m Media) Bytes() ([]byte, error) {
	if m.BytesB64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(m.BytesB64)
}

// MediaFromMap decodes a map into a Media descriptor. A map qualifies when
// it carries "kind" and "mime" strings and an inline payload or URI.
func MediaFromMap(v map[string]any) (Media, bool) {
	kind, _ := v["kind"].(string)
	mime, _ := v["mime"].(string)
	if kind == "" || mime == "" {
		return Media{}, false
	}
	b64, _ := v["bytes_b64"].(string)
	uri, _ := v["uri"].(string)
	if b64 == "" && uri == "" {
		return Media{}, false
	}
	m := Media{Kind: kind, MIME: mime, BytesB64: b64, URI: uri}
	m.Filename, _ = v["filename"].(string)
	m.Size = toInt64(v["size"])
	return m, true
}

// DecodeContent turns a settings value into raw bytes. It accepts raw
// bytes, Media maps, data URLs, bare base64 and plain text; the returned
// content type is empty when the form does not declare one.
func DecodeContent(v any) ([]byte, string, error) {
	switch t := v.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return t, "", nil
	case map[string]any:
		m, ok := MediaFromMap(t)
		if !ok {
			return nil, "", fmt.Errorf("map content is not a media descriptor")
		}
		data, err := m.Bytes()
		if err != nil {
			return nil, "", fmt.Errorf("decode media payload: %w", err)
		}
		return data, m.MIME, nil
	case string:
		if strings.HasPrefix(t, "data:") {
			return decodeDataURL(t)
		}
		if looksLikeBase64(t) {
			if data, err := base64.StdEncoding.DecodeString(t); err == nil {
				return data, "", nil
			}
		}
		return []byte(t), "text/plain; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unsupported content type %T", v)
	}
}

// decodeDataURL parses data:[<mediatype>][;base64],<payload>.
func decodeDataURL(s string) ([]byte, string, error) {
	rest := strings.TrimPrefix(s, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		mime := strings.TrimSuffix(meta, ";base64")
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URL payload: %w", err)
		}
		return data, mime, nil
	}
	return []byte(payload), meta, nil
}

// looksLikeBase64 gates the bare-base64 form: padded length, base64
// alphabet only, and long enough that prose never qualifies.
func looksLikeBase64(s string) bool {
	if len(s) < 8 || len(s)%4 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/':
		case c == '=' && i >= len(s)-2:
		default:
			return false
		}
	}
	return true
}

// CleanRelPath normalizes a caller-supplied storage path. Absolute paths
// and parent traversal are rejected.
func CleanRelPath(p string) (string, error) {
	s := strings.TrimSpace(p)
	if s == "" || s == "." {
		return "", nil
	}
	if filepath.IsAbs(s) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", p)
	}
	clean := filepath.Clean(s)
	if clean == "." {
		return "", nil
	}
	parent := ".."
	sep := string(os.PathSeparator)
	if clean == parent || strings.HasPrefix(clean, parent+sep) {
		return "", fmt.Errorf("path traversal is not allowed: %s", p)
	}
	return clean, nil
}
