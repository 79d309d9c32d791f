package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Blob       BlobConfig
	Supabase   SupabaseConfig
	OCR        OCRConfig
	Completion CompletionConfig
	Client     ClientConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	FrontendURL    string
	MaxConnections int
	PublicURL      string
}

type StorageConfig struct {
	Driver      string // "sqlite" or "postgres"
	DataDir     string
	DatabaseURL string
}

type BlobConfig struct {
	Backend    string // "fs" or "s3"
	Bucket     string
	Region     string
	Endpoint   string
	SigningKey string
}

type SupabaseConfig struct {
	URL           string
	SecretKey     string
	S3AccessKeyID string
	JWTSecret     string
}

type OCRConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
}

type CompletionConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type ClientConfig struct {
	APIURL string
	Token  string
}

type LogConfig struct {
	Level string
}

var defaultOrigins = []string{"http://localhost:8080", "http://localhost:5173"}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			AllowedOrigins: append([]string(nil), defaultOrigins...),
			MaxConnections: 256,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Blob: BlobConfig{
			Backend: "fs",
			Bucket:  "documents",
			Region:  "us-east-1",
		},
		OCR: OCRConfig{
			BaseURL:      "https://ocr.fjsoftlab.com",
			PollInterval: 5 * time.Second,
			MaxAttempts:  60,
		},
		Completion: CompletionConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4.1-2025-04-14",
			MaxTokens: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, an optional dotenv
// file and environment variables, in increasing order of priority.
//
// The file backend lives at $XDG_CONFIG_HOME/cvextract/config.json. The
// dotenv file is .env.prod when NODE_ENV or APP_ENV is "production" and
// .env.dev otherwise; values already present in the environment win.
//
// Load does not check required secrets; call Validate before serving.
func Load() (Config, error) {
	loadDotenv()
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	derive(&cfg)

	return cfg, nil
}

// derive fills values computed from other keys.
func derive(cfg *Config) {
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Server.FrontendURL != "" {
		cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, strings.TrimRight(cfg.Server.FrontendURL, "/"))
	}
	if cfg.Client.APIURL == "" {
		cfg.Client.APIURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	if cfg.Blob.Endpoint == "" && cfg.Supabase.URL != "" {
		cfg.Blob.Endpoint = strings.TrimRight(cfg.Supabase.URL, "/") + "/storage/v1/s3"
	}
	if cfg.Blob.SigningKey == "" {
		cfg.Blob.SigningKey = randomKey()
	}
}

// Validate reports missing required settings for running the server.
func (c Config) Validate() error {
	var missing []string
	if c.Completion.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.OCR.APIKey == "" {
		missing = append(missing, "FJSOFTLAB_OCR_API_KEY")
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want sqlite or postgres)", c.Storage.Driver)
	}
	switch c.Blob.Backend {
	case "fs":
	case "s3":
		if c.Blob.Endpoint == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Supabase.SecretKey == "" {
			missing = append(missing, "SUPABASE_SECRET_KEY")
		}
		if c.Supabase.S3AccessKeyID == "" {
			missing = append(missing, "SUPABASE_S3_ACCESS_KEY_ID")
		}
	default:
		return fmt.Errorf("unknown blob backend %q (want fs or s3)", c.Blob.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func randomKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
