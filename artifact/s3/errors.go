//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package s3

import "errors"

// Sentinel errors surfaced by the S3 artifact service.
var (
	// ErrEmptyBucket is returned when no bucket is configured.
	ErrEmptyBucket = errors.New("s3 artifact: bucket cannot be empty")

	// ErrEmptyPath is returned when the object path is empty.
	ErrEmptyPath = errors.New("s3 artifact: path cannot be empty")

	// ErrNilArtifact is returned when the artifact is nil.
	ErrNilArtifact = errors.New("s3 artifact: artifact cannot be nil")

	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("s3 artifact: object not found")

	// ErrBucketNotFound is returned when the bucket does not exist.
	ErrBucketNotFound = errors.New("s3 artifact: bucket not found")

	// ErrAccessDenied is returned when access to the object is denied.
	ErrAccessDenied = errors.New("s3 artifact: access denied")
)
