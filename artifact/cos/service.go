//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package cos provides a Tencent Cloud Object Storage (COS) implementation
// of the artifact service.
//
// The service is bound to a bucket URL such as
// https://bucket-appid.cos.ap-guangzhou.myqcloud.com; other buckets in the
// same region are addressed by swapping the bucket label of the host.
//
// Authentication credentials can be provided via the COS_SECRETID and
// COS_SECRETKEY environment variables or the WithSecretID/WithSecretKey
// options.
package cos

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultContentType = "application/octet-stream"
)

// Compile-time check that Service implements artifact.Service.
var _ artifact.Service = (*Service)(nil)

// Service is a Tencent Cloud Object Storage implementation of the artifact
// service.
type Service struct {
	baseURL    *url.URL
	bucket     string
	secretID   string
	secretKey  string
	httpClient *http.Client
	publicRead bool

	mu      sync.Mutex
	clients map[string]*cos.Client
}

// NewService creates a new COS artifact service bound to the bucket the
// given URL addresses.
func NewService(bucketURL string, opts ...Option) (*Service, error) {
	o := &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv("COS_SECRETID"),
		secretKey: os.Getenv("COS_SECRETKEY"),
	}
	for _, opt := range opts {
		opt(o)
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bucket url %q: %w", bucketURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid bucket url %q: missing host", bucketURL)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: o.timeout,
			Transport: &cos.AuthorizationTransport{
				SecretID:  o.secretID,
				SecretKey: o.secretKey,
			},
		}
	}

	// The bucket name is the leading host label, e.g.
	// "flow-files-125000.cos.ap-guangzhou.myqcloud.com".
	bucket, _, _ := strings.Cut(u.Host, ".")

	return &Service{
		baseURL:    u,
		bucket:     bucket,
		secretID:   o.secretID,
		secretKey:  o.secretKey,
		httpClient: httpClient,
		publicRead: o.publicRead,
		clients:    make(map[string]*cos.Client),
	}, nil
}

// Name implements artifact.Service.
func (s *Service) Name() string {
	return "cos"
}

// UploadBytes implements artifact.Service.
func (s *Service) UploadBytes(
	ctx context.Context,
	bucket, path string,
	art *artifact.Artifact,
) (*artifact.Object, error) {
	if art == nil {
		return nil, fmt.Errorf("cos artifact: artifact is nil")
	}
	if path == "" {
		return nil, fmt.Errorf("cos artifact: object path is empty")
	}
	bucket = s.resolveBucket(bucket)
	contentType := cmp.Or(art.MimeType, defaultContentType)

	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	if _, err := s.clientFor(bucket).Object.Put(ctx, path, bytes.NewReader(art.Data), opt); err != nil {
		return nil, fmt.Errorf("failed to upload artifact: %w", err)
	}

	return &artifact.Object{
		Storage:     s.Name(),
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(art.Data)),
	}, nil
}

// Download implements artifact.Service.
func (s *Service) Download(ctx context.Context, bucket, path string) (*artifact.Artifact, error) {
	bucket = s.resolveBucket(bucket)

	resp, err := s.clientFor(bucket).Object.Get(ctx, path, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}

	return &artifact.Artifact{
		Data:     data,
		MimeType: cmp.Or(resp.Header.Get("Content-Type"), defaultContentType),
		Name:     path[strings.LastIndex(path, "/")+1:],
	}, nil
}

// CreateSignedURL implements artifact.Service.
func (s *Service) CreateSignedURL(
	ctx context.Context,
	bucket, path string,
	expires time.Duration,
) (string, error) {
	if s.secretID == "" || s.secretKey == "" {
		return "", fmt.Errorf("cos artifact: credentials are required for signed urls")
	}
	bucket = s.resolveBucket(bucket)

	u, err := s.clientFor(bucket).Object.GetPresignedURL(
		ctx, http.MethodGet, path, s.secretID, s.secretKey, expires, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return u.String(), nil
}

// PublicURL implements artifact.Service.
func (s *Service) PublicURL(bucket, path string) string {
	if !s.publicRead {
		return ""
	}
	bucket = s.resolveBucket(bucket)
	return strings.TrimSuffix(s.bucketURL(bucket).String(), "/") + "/" + path
}

// Delete implements artifact.Service.
func (s *Service) Delete(ctx context.Context, bucket, path string) error {
	bucket = s.resolveBucket(bucket)

	if _, err := s.clientFor(bucket).Object.Delete(ctx, path); err != nil && !cos.IsNotFoundError(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// ListPaths implements artifact.Service.
func (s *Service) ListPaths(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucket = s.resolveBucket(bucket)
	client := s.clientFor(bucket)

	var keys []string
	marker := ""
	for {
		result, _, err := client.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix: prefix,
			Marker: marker,
		})
		if err != nil {
			if cos.IsNotFoundError(err) {
				return keys, nil
			}
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, obj := range result.Contents {
			keys = append(keys, obj.Key)
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	return keys, nil
}

func (s *Service) resolveBucket(bucket string) string {
	if bucket == "" {
		return s.bucket
	}
	return bucket
}

// bucketURL addresses a bucket in the same region by swapping the bucket
// label of the configured host.
func (s *Service) bucketURL(bucket string) *url.URL {
	u := *s.baseURL
	if bucket != s.bucket {
		_, rest, ok := strings.Cut(u.Host, ".")
		if ok {
			u.Host = bucket + "." + rest
		}
	}
	return &u
}

func (s *Service) clientFor(bucket string) *cos.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[bucket]; ok {
		return client
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: s.bucketURL(bucket)}, s.httpClient)
	s.clients[bucket] = client
	return client
}
