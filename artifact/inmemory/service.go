//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory implementation of the artifact
// service. It is suitable for testing and development environments.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
)

const defaultBucket = "flow-files"

// Service is an in-memory implementation of the artifact service.
type Service struct {
	bucket string
	// objects stores blobs by "<bucket>/<path>".
	objects map[string]*artifact.Artifact
	mutex   sync.RWMutex
}

// Compile-time check that Service implements artifact.Service.
var _ artifact.Service = (*Service)(nil)

// NewService creates a new in-memory artifact service. An empty bucket
// selects the built-in default.
func NewService(bucket string) *Service {
	if bucket == "" {
		bucket = defaultBucket
	}
	return &Service{
		bucket:  bucket,
		objects: make(map[string]*artifact.Artifact),
	}
}

// Name implements artifact.Service.
func (s *Service) Name() string {
	return "memory"
}

// UploadBytes implements artifact.Service.
func (s *Service) UploadBytes(
	ctx context.Context,
	bucket, path string,
	art *artifact.Artifact,
) (*artifact.Object, error) {
	if art == nil {
		return nil, fmt.Errorf("artifact cannot be nil")
	}
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	bucket = s.resolveBucket(bucket)

	stored := &artifact.Artifact{
		Data:     append([]byte(nil), art.Data...),
		MimeType: art.MimeType,
		Name:     art.Name,
	}

	s.mutex.Lock()
	s.objects[bucket+"/"+path] = stored
	s.mutex.Unlock()

	return &artifact.Object{
		Storage:     s.Name(),
		Bucket:      bucket,
		Path:        path,
		ContentType: art.MimeType,
		Size:        int64(len(art.Data)),
	}, nil
}

// Download implements artifact.Service.
func (s *Service) Download(ctx context.Context, bucket, path string) (*artifact.Artifact, error) {
	bucket = s.resolveBucket(bucket)

	s.mutex.RLock()
	stored, ok := s.objects[bucket+"/"+path]
	s.mutex.RUnlock()
	if !ok {
		return nil, nil
	}
	return &artifact.Artifact{
		Data:     append([]byte(nil), stored.Data...),
		MimeType: stored.MimeType,
		Name:     stored.Name,
	}, nil
}

// CreateSignedURL implements artifact.Service. The returned URL is a
// memory:// pseudo-URL; it identifies the object but is not fetchable
// over HTTP.
func (s *Service) CreateSignedURL(
	ctx context.Context,
	bucket, path string,
	expires time.Duration,
) (string, error) {
	bucket = s.resolveBucket(bucket)

	s.mutex.RLock()
	_, ok := s.objects[bucket+"/"+path]
	s.mutex.RUnlock()
	if !ok {
		return "", fmt.Errorf("object not found: %s/%s", bucket, path)
	}
	expiresAt := time.Now().Add(expires).UTC().Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, path, expiresAt), nil
}

// PublicURL implements artifact.Service. Memory objects have no public
// surface.
func (s *Service) PublicURL(bucket, path string) string {
	return ""
}

// Delete implements artifact.Service.
func (s *Service) Delete(ctx context.Context, bucket, path string) error {
	bucket = s.resolveBucket(bucket)

	s.mutex.Lock()
	delete(s.objects, bucket+"/"+path)
	s.mutex.Unlock()
	return nil
}

// ListPaths implements artifact.Service.
func (s *Service) ListPaths(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucket = s.resolveBucket(bucket)
	keyPrefix := bucket + "/"

	s.mutex.RLock()
	var paths []string
	for key := range s.objects {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		path := strings.TrimPrefix(key, keyPrefix)
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	s.mutex.RUnlock()

	sort.Strings(paths)
	return paths, nil
}

func (s *Service) resolveBucket(bucket string) string {
	if bucket == "" {
		return s.bucket
	}
	return bucket
}
