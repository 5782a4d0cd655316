//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the server configuration from the environment.
// Every option has a workable default: an empty environment yields a
// fully in-memory deployment with stubbed providers.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selected by DATABASE_URL.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Object store backends selected by OBJECT_STORE.
const (
	ObjectStoreMemory = "memory"
	ObjectStoreS3     = "s3"
	ObjectStoreCOS    = "cos"
)

// Code interpreter backends selected by CODE_INTERPRETER.
const (
	CodeInterpreterOff    = "off"
	CodeInterpreterLocal  = "local"
	CodeInterpreterDocker = "docker"
)

// Defaults applied when the environment leaves an option unset.
const (
	DefaultPort         = 8000
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultGeminiModel  = "gemini-2.0-flash"
	DefaultSignedURLTTL = time.Hour
)

// Config is the resolved server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int
	// CORSOrigins lists the allowed origins; "*" allows any.
	CORSOrigins []string

	// StoreBackend is one of the Store constants; DSN carries the
	// backend-specific connection string.
	StoreBackend string
	DSN          string

	// OpenAIAPIKey enables the OpenAI model, speech and transcription
	// providers. Empty downgrades llm.simple, audio.* and agents to their
	// deterministic offline paths.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// GoogleAPIKey selects the Gemini chat backend instead of OpenAI.
	GoogleAPIKey string
	GeminiModel  string

	// ComposioAPIKey enables Composio-hosted tools; ComposioToolkits is
	// the env fallback for agents that name no toolkits themselves.
	ComposioAPIKey   string
	ComposioToolkits []string

	// ObjectStore is one of the ObjectStore constants.
	ObjectStore   string
	StorageBucket string
	SignedURLTTL  time.Duration

	// S3 backend parameters. The Supabase aliases map here: Supabase
	// storage speaks the S3 protocol at <url>/storage/v1/s3.
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool

	// COS backend parameters.
	COSBucketURL string
	COSSecretID  string
	COSSecretKey string

	// CodeInterpreter is one of the CodeInterpreter constants.
	CodeInterpreter string

	// FrontendBaseURL is the redirect target for integration callbacks.
	FrontendBaseURL string

	// Recognized authentication parameters. Token validation is outside
	// the engine; these are carried through for the boundary that does it.
	AllowedAuthProviders []string
	SupabaseJWTSecret    string
	SupabaseProjectRef   string

	// OTLP telemetry bootstrap; empty endpoint leaves telemetry no-op.
	OTLPEndpoint string
	OTLPProtocol string

	// A2AEnabled mounts the assistant as an A2A agent under /a2a/.
	A2AEnabled bool
}

// Load reads the configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Port:        envInt("PORT", DefaultPort),
		CORSOrigins: envCSV("CORS_ORIGINS", []string{"*"}),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   envString("OPENAI_MODEL", DefaultOpenAIModel),

		GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:  envString("GEMINI_MODEL", DefaultGeminiModel),

		ComposioAPIKey:   os.Getenv("COMPOSIO_API_KEY"),
		ComposioToolkits: envCSV("COMPOSIO_TOOLKITS", nil),

		ObjectStore:   envString("OBJECT_STORE", ObjectStoreMemory),
		StorageBucket: os.Getenv("STORAGE_BUCKET"),
		SignedURLTTL:  envSeconds("SIGNED_URL_EXPIRES_SECS", DefaultSignedURLTTL),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PathStyle:       envBool("S3_PATH_STYLE", false),

		COSBucketURL: os.Getenv("COS_BUCKET_URL"),
		COSSecretID:  os.Getenv("COS_SECRET_ID"),
		COSSecretKey: os.Getenv("COS_SECRET_KEY"),

		CodeInterpreter: envString("CODE_INTERPRETER", CodeInterpreterOff),

		FrontendBaseURL: os.Getenv("FRONTEND_BASE_URL"),

		AllowedAuthProviders: envCSV("ALLOWED_AUTH_PROVIDERS", nil),
		SupabaseJWTSecret:    os.Getenv("SUPABASE_JWT_SECRET"),
		SupabaseProjectRef:   os.Getenv("SUPABASE_PROJECT_REF"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPProtocol: envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),

		A2AEnabled: envBool("A2A_ENABLED", false),
	}
	cfg.StoreBackend, cfg.DSN = parseDatabaseURL(os.Getenv("DATABASE_URL"))
	applySupabaseAliases(cfg)
	return cfg
}

// parseDatabaseURL maps the DATABASE_URL value onto a store backend and its
// DSN. Empty selects the in-memory store.
func parseDatabaseURL(raw string) (backend, dsn string) {
	switch {
	case raw == "":
		return StoreMemory, ""
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return StorePostgres, raw
	case strings.HasPrefix(raw, "sqlite://"):
		return StoreSQLite, strings.TrimPrefix(raw, "sqlite://")
	case strings.HasPrefix(raw, "file:"):
		return StoreSQLite, raw
	default:
		// A bare path is treated as a sqlite file.
		return StoreSQLite, raw
	}
}

// applySupabaseAliases maps the Supabase storage variables onto the S3
// backend. Supabase storage exposes an S3-compatible endpoint under
// /storage/v1/s3 addressed with path-style keys.
func applySupabaseAliases(cfg *Config) {
	url := os.Getenv("SUPABASE_URL")
	if url == "" {
		return
	}
	cfg.ObjectStore = ObjectStoreS3
	cfg.S3Endpoint = strings.TrimSuffix(url, "/") + "/storage/v1/s3"
	cfg.S3PathStyle = true
	if key := os.Getenv("SUPABASE_SERVICE_KEY"); key != "" {
		cfg.S3AccessKeyID = "service_role"
		cfg.S3SecretAccessKey = key
	}
	if bucket := os.Getenv("SUPABASE_STORAGE_BUCKET"); bucket != "" {
		cfg.StorageBucket = bucket
	}
	if ttl := os.Getenv("SUPABASE_SIGNED_URL_EXPIRES_SECS"); ttl != "" {
		cfg.SignedURLTTL = envSeconds("SUPABASE_SIGNED_URL_EXPIRES_SECS", cfg.SignedURLTTL)
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func envCSV(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
