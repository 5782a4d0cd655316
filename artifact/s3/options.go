//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package s3

// Default configuration values.
const (
	defaultRegion     = "us-east-1"
	defaultMaxRetries = 3
)

// options holds the configuration for creating an S3 artifact service.
type options struct {
	// Connection settings.
	endpoint string // custom endpoint URL (MinIO, R2, Spaces, Supabase, ...)
	region   string // AWS region

	// Authentication.
	accessKeyID     string
	secretAccessKey string
	sessionToken    string

	// Behavior.
	usePathStyle  bool   // path-style addressing (required for MinIO)
	publicBaseURL string // base URL for unauthenticated object access
	maxRetries    int

	// Pre-created API client and presigner (tests).
	api       s3API
	presigner presignAPI
}

// Option is a function that configures the S3 artifact service.
type Option func(*options)

// WithEndpoint sets a custom endpoint URL.
// Use this for S3-compatible services like MinIO, DigitalOcean Spaces,
// Cloudflare R2, Supabase storage, or any other S3-compatible store.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

// WithRegion sets the AWS region. Default is "us-east-1" when unset and no
// AWS_REGION env var is present.
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithCredentials sets the access key ID and secret access key. If not
// provided, credentials come from the default AWS credential chain. Both
// values must be non-empty to take effect.
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *options) {
		if accessKeyID != "" && secretAccessKey != "" {
			o.accessKeyID = accessKeyID
			o.secretAccessKey = secretAccessKey
		}
	}
}

// WithSessionToken sets the session token for temporary credentials (STS).
func WithSessionToken(token string) Option {
	return func(o *options) {
		o.sessionToken = token
	}
}

// WithPathStyle enables path-style addressing instead of
// virtual-hosted-style. Required for MinIO and some S3-compatible stores.
//
// Path-style: http://endpoint/bucket/key
// Virtual-hosted: http://bucket.endpoint/key (default for AWS S3)
func WithPathStyle(enabled bool) Option {
	return func(o *options) {
		o.usePathStyle = enabled
	}
}

// WithPublicBaseURL sets the base URL public object links are built from,
// e.g. the Supabase storage public endpoint. When unset, PublicURL
// derives a location from the endpoint or the AWS virtual-hosted form.
func WithPublicBaseURL(base string) Option {
	return func(o *options) {
		o.publicBaseURL = base
	}
}

// WithRetries sets the maximum number of retries for failed requests.
// Default is 3.
func WithRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// withAPI injects a pre-created API client. Used by tests.
func withAPI(api s3API) Option {
	return func(o *options) {
		o.api = api
	}
}

// withPresigner injects a pre-created presigner. Used by tests.
func withPresigner(p presignAPI) Option {
	return func(o *options) {
		o.presigner = p
	}
}
