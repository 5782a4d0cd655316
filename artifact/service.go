//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package artifact

import (
	"context"
	"time"
)

// Service defines the interface for object storage operations.
//
// Implementations bind a default bucket; an empty bucket argument selects
// it. Paths are forward-slash object keys relative to the bucket root.
type Service interface {
	// Name returns the backend identifier recorded in file references,
	// e.g. "memory", "s3", "cos".
	Name() string

	// UploadBytes writes an artifact and returns the stored object.
	UploadBytes(ctx context.Context, bucket, path string, art *Artifact) (*Object, error)

	// Download reads an object back. It returns nil when the object does
	// not exist.
	Download(ctx context.Context, bucket, path string) (*Artifact, error)

	// CreateSignedURL returns a time-limited URL for reading the object.
	CreateSignedURL(ctx context.Context, bucket, path string, expires time.Duration) (string, error)

	// PublicURL returns the unauthenticated URL for the object, or empty
	// when the backend has no public surface.
	PublicURL(bucket, path string) string

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, path string) error

	// ListPaths lists object keys under a prefix in lexical order.
	ListPaths(ctx context.Context, bucket, prefix string) ([]string, error)
}
