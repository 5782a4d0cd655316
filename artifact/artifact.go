//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package artifact provides the object store abstraction blocks upload
// file content through.
package artifact

// Artifact represents a content blob such as an image, audio clip, or
// document.
type Artifact struct {
	// Data contains the raw bytes (required).
	Data []byte `json:"data,omitempty"`
	// MimeType is the IANA standard MIME type of the data.
	MimeType string `json:"mime_type,omitempty"`
	// Name is an optional display name or filename.
	Name string `json:"name,omitempty"`
}

// Object identifies a stored blob.
type Object struct {
	// Storage is the backend identifier, e.g. "memory", "s3", "cos".
	Storage string `json:"storage"`
	// Bucket is the bucket the blob was written to.
	Bucket string `json:"bucket"`
	// Path is the object key within the bucket.
	Path string `json:"path"`
	// ContentType is the stored MIME type.
	ContentType string `json:"content_type,omitempty"`
	// Size is the blob size in bytes.
	Size int64 `json:"size"`
}
