//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package s3 provides an S3-compatible artifact service. It supports AWS
// S3, MinIO, DigitalOcean Spaces, Cloudflare R2, Supabase storage and
// other S3-compatible object stores.
package s3

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"trpc.group/trpc-go/trpc-flow-go/artifact"
)

// defaultContentType is the fallback MIME type for artifacts without one.
const defaultContentType = "application/octet-stream"

// Compile-time check that Service implements artifact.Service.
var _ artifact.Service = (*Service)(nil)

// s3API is the subset of AWS S3 API operations used by the service.
// The interface allows mocking the AWS SDK in unit tests.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// presignAPI is the presigner subset used for signed URLs.
type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Service is an S3-compatible implementation of the artifact service.
type Service struct {
	api           s3API
	presigner     presignAPI
	bucket        string
	endpoint      string
	region        string
	usePathStyle  bool
	publicBaseURL string
}

// NewService creates a new S3 artifact service bound to a default bucket.
func NewService(ctx context.Context, bucket string, opts ...Option) (*Service, error) {
	o := &options{
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}
	if bucket == "" {
		return nil, ErrEmptyBucket
	}

	svc := &Service{
		api:           o.api,
		presigner:     o.presigner,
		bucket:        bucket,
		endpoint:      o.endpoint,
		region:        o.region,
		usePathStyle:  o.usePathStyle,
		publicBaseURL: o.publicBaseURL,
	}
	if svc.api != nil {
		return svc, nil
	}

	var awsOpts []func(*config.LoadOptions) error
	if o.region != "" {
		awsOpts = append(awsOpts, config.WithRegion(o.region))
	} else if o.endpoint != "" {
		// Custom endpoints need a region; use the default fallback.
		awsOpts = append(awsOpts, config.WithRegion(defaultRegion))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if o.endpoint != "" {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.BaseEndpoint = aws.String(o.endpoint)
		})
	}
	if o.usePathStyle {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.UsePathStyle = true
		})
	}
	if o.accessKeyID != "" && o.secretAccessKey != "" {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.Credentials = credentials.NewStaticCredentialsProvider(
				o.accessKeyID,
				o.secretAccessKey,
				o.sessionToken,
			)
		})
	}
	if o.maxRetries > 0 {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.RetryMaxAttempts = o.maxRetries
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	svc.api = client
	svc.presigner = s3.NewPresignClient(client)
	return svc, nil
}

// Name implements artifact.Service.
func (s *Service) Name() string {
	return "s3"
}

// UploadBytes implements artifact.Service.
func (s *Service) UploadBytes(
	ctx context.Context,
	bucket, path string,
	art *artifact.Artifact,
) (*artifact.Object, error) {
	if art == nil {
		return nil, ErrNilArtifact
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	bucket = s.resolveBucket(bucket)
	contentType := cmp.Or(art.MimeType, defaultContentType)

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(art.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload artifact: %w", wrapError(err))
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

	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		wrapped := wrapError(err)
		if errors.Is(wrapped, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download artifact: %w", wrapped)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}

	return &artifact.Artifact{
		Data:     data,
		MimeType: cmp.Or(aws.ToString(resp.ContentType), defaultContentType),
		Name:     path[strings.LastIndex(path, "/")+1:],
	}, nil
}

// CreateSignedURL implements artifact.Service.
func (s *Service) CreateSignedURL(
	ctx context.Context,
	bucket, path string,
	expires time.Duration,
) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("s3 artifact: presigner is not configured")
	}
	bucket = s.resolveBucket(bucket)

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", wrapError(err))
	}
	return req.URL, nil
}

// PublicURL implements artifact.Service.
func (s *Service) PublicURL(bucket, path string) string {
	bucket = s.resolveBucket(bucket)
	if s.publicBaseURL != "" {
		return strings.TrimSuffix(s.publicBaseURL, "/") + "/" + bucket + "/" + path
	}
	if s.endpoint != "" {
		return strings.TrimSuffix(s.endpoint, "/") + "/" + bucket + "/" + path
	}
	region := cmp.Or(s.region, defaultRegion)
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, path)
}

// Delete implements artifact.Service.
func (s *Service) Delete(ctx context.Context, bucket, path string) error {
	bucket = s.resolveBucket(bucket)

	output, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: []types.ObjectIdentifier{{Key: aws.String(path)}},
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", wrapError(err))
	}
	if len(output.Errors) > 0 {
		first := output.Errors[0]
		return fmt.Errorf("failed to delete object %s: %s",
			aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return nil
}

// ListPaths implements artifact.Service.
func (s *Service) ListPaths(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucket = s.resolveBucket(bucket)

	var keys []string
	var continuationToken *string
	for {
		output, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", wrapError(err))
		}
		for _, obj := range output.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}
	return keys, nil
}

func (s *Service) resolveBucket(bucket string) string {
	if bucket == "" {
		return s.bucket
	}
	return bucket
}

// wrapError converts AWS SDK errors to sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return errors.Join(ErrNotFound, err)
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return errors.Join(ErrBucketNotFound, err)
	}

	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException":
			return errors.Join(ErrAccessDenied, err)
		case "NoSuchKey":
			return errors.Join(ErrNotFound, err)
		case "NoSuchBucket":
			return errors.Join(ErrBucketNotFound, err)
		}
	}

	return err
}
