package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
	kList
)

// keySpec binds a dotted config key to its env vars and Config field.
// When several env vars are listed, the first non-empty one wins.
type keySpec struct {
	key     string
	typ     keyType
	env     []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func env(names ...string) []string { return names }

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: env("CVEXTRACT_SERVER_HOST"),
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: env("PORT", "WEBSITES_PORT"),
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kList, env: env("CVEXTRACT_SERVER_ALLOWED_ORIGINS"),
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.AllowedOrigins, ",") },
	},
	{
		key: "server.frontend_url", typ: kString, env: env("FRONTEND_ULR"),
		apply:   func(cfg *Config, v any) { cfg.Server.FrontendURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.FrontendURL },
	},
	{
		key: "server.max_connections", typ: kInt, env: env("CVEXTRACT_SERVER_MAX_CONNECTIONS"),
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "server.public_url", typ: kString, env: env("CVEXTRACT_PUBLIC_URL"),
		apply:   func(cfg *Config, v any) { cfg.Server.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.PublicURL },
	},
	{
		key: "storage.driver", typ: kString, env: env("CVEXTRACT_STORAGE_DRIVER"),
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: env("CVEXTRACT_STORAGE_DATA_DIR"),
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.database_url", typ: kString, env: env("DATABASE_URL"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DatabaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DatabaseURL },
	},
	{
		key: "blob.backend", typ: kString, env: env("CVEXTRACT_BLOB_BACKEND"),
		apply:   func(cfg *Config, v any) { cfg.Blob.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Backend },
	},
	{
		key: "blob.bucket", typ: kString, env: env("CVEXTRACT_BLOB_BUCKET"),
		apply:   func(cfg *Config, v any) { cfg.Blob.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Bucket },
	},
	{
		key: "blob.region", typ: kString, env: env("CVEXTRACT_BLOB_REGION"),
		apply:   func(cfg *Config, v any) { cfg.Blob.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Region },
	},
	{
		key: "blob.endpoint", typ: kString, env: env("CVEXTRACT_BLOB_ENDPOINT"),
		apply:   func(cfg *Config, v any) { cfg.Blob.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Endpoint },
	},
	{
		key: "blob.signing_key", typ: kString, env: env("CVEXTRACT_BLOB_SIGNING_KEY"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Blob.SigningKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.SigningKey },
	},
	{
		key: "supabase.url", typ: kString, env: env("SUPABASE_URL"),
		apply:   func(cfg *Config, v any) { cfg.Supabase.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Supabase.URL },
	},
	{
		key: "supabase.secret_key", typ: kString, env: env("SUPABASE_SECRET_KEY"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Supabase.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Supabase.SecretKey },
	},
	{
		key: "supabase.s3_access_key_id", typ: kString, env: env("SUPABASE_S3_ACCESS_KEY_ID"),
		apply:   func(cfg *Config, v any) { cfg.Supabase.S3AccessKeyID = v.(string) },
		extract: func(cfg Config) any { return cfg.Supabase.S3AccessKeyID },
	},
	{
		key: "supabase.jwt_secret", typ: kString, env: env("SUPABASE_JWT_SECRET"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Supabase.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Supabase.JWTSecret },
	},
	{
		key: "ocr.base_url", typ: kString, env: env("CVEXTRACT_OCR_BASE_URL"),
		apply:   func(cfg *Config, v any) { cfg.OCR.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.BaseURL },
	},
	{
		key: "ocr.api_key", typ: kString, env: env("FJSOFTLAB_OCR_API_KEY"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OCR.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.APIKey },
	},
	{
		key: "ocr.poll_interval", typ: kDuration, env: env("CVEXTRACT_OCR_POLL_INTERVAL"),
		apply:   func(cfg *Config, v any) { cfg.OCR.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.OCR.PollInterval },
	},
	{
		key: "ocr.max_attempts", typ: kInt, env: env("CVEXTRACT_OCR_MAX_ATTEMPTS"),
		apply:   func(cfg *Config, v any) { cfg.OCR.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.OCR.MaxAttempts },
	},
	{
		key: "completion.base_url", typ: kString, env: env("CVEXTRACT_COMPLETION_BASE_URL"),
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.api_key", typ: kString, env: env("OPENAI_API_KEY"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "completion.model", typ: kString, env: env("CVEXTRACT_COMPLETION_MODEL"),
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.max_tokens", typ: kInt, env: env("CVEXTRACT_COMPLETION_MAX_TOKENS"),
		apply:   func(cfg *Config, v any) { cfg.Completion.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Completion.MaxTokens },
	},
	{
		key: "client.api_url", typ: kString, env: env("CVEXTRACT_API_URL"),
		apply:   func(cfg *Config, v any) { cfg.Client.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.APIURL },
	},
	{
		key: "client.token", typ: kString, env: env("CVEXTRACT_API_TOKEN"),
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Client.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Token },
	},
	{
		key: "log.level", typ: kString, env: env("CVEXTRACT_LOG_LEVEL"),
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				s.apply(cfg, splitList(v))
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kList:
			s.apply(cfg, splitList(raw))
		}
	}
}

func lookupEnv(names []string) (string, string) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return n, v
		}
	}
	return "", ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
