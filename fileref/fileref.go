//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package fileref provides the public API for the portable file descriptors
// blocks exchange: object store references with signed URLs, and inline
// media payloads.
package fileref

import (
	internal "trpc.group/trpc-go/trpc-flow-go/internal/fileref"
)

// Ref is a portable reference to an object-storage blob.
type Ref = internal.Ref

// Media is the inline descriptor audio and media blocks emit.
type Media = internal.Media

// NewMedia builds a Media descriptor around raw bytes.
func NewMedia(kind, mime string, data []byte) Media {
	return internal.NewMedia(kind, mime, data)
}

// FromMap decodes a map into a Ref when it is Ref-shaped.
func FromMap(m map[string]any) (Ref, bool) {
	return internal.FromMap(m)
}

// MediaFromMap decodes a map into a Media descriptor when it qualifies.
func MediaFromMap(m map[string]any) (Media, bool) {
	return internal.MediaFromMap(m)
}

// Find walks a value depth-first and returns the first Ref-shaped map,
// visiting map keys in sorted order.
func Find(v any) (Ref, bool) {
	return internal.Find(v)
}

// FindInOutputs scans upstream node outputs for the first Ref, visiting
// node ids in sorted order.
func FindInOutputs(outputs map[string]map[string]any) (Ref, bool) {
	generic := make(map[string]any, len(outputs))
	for id, output := range outputs {
		generic[id] = output
	}
	return internal.Find(generic)
}

// DecodeContent turns a settings value into raw bytes: raw bytes, Media
// maps, data URLs, bare base64 or plain text.
func DecodeContent(v any) ([]byte, string, error) {
	return internal.DecodeContent(v)
}

// CleanRelPath normalizes a caller-supplied storage path, rejecting
// absolute paths and parent traversal.
func CleanRelPath(p string) (string, error) {
	return internal.CleanRelPath(p)
}
