package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/fjsoftlab/cvextract/internal/api"
	"github.com/fjsoftlab/cvextract/internal/blob"
	"github.com/fjsoftlab/cvextract/internal/completion"
	"github.com/fjsoftlab/cvextract/internal/config"
	"github.com/fjsoftlab/cvextract/internal/extraction"
	"github.com/fjsoftlab/cvextract/internal/ocr"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// app holds the components shared by the HTTP and MCP servers.
type app struct {
	store      *storage.Store
	blobs      blob.Store
	files      http.Handler // nil unless blobs live on the local filesystem
	ocr        *ocr.Extractor
	extraction *extraction.Service
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func loadServerConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(storage.Options{
		Driver:  cfg.Storage.Driver,
		DataDir: cfg.Storage.DataDir,
		DSN:     cfg.Storage.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func openBlobs(ctx context.Context, cfg config.Config) (blob.Store, http.Handler, error) {
	switch cfg.Blob.Backend {
	case "s3":
		b, err := blob.NewS3(ctx, blob.S3Options{
			Endpoint:        cfg.Blob.Endpoint,
			Region:          cfg.Blob.Region,
			Bucket:          cfg.Blob.Bucket,
			AccessKeyID:     cfg.Supabase.S3AccessKeyID,
			SecretAccessKey: cfg.Supabase.SecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening s3 blob store: %w", err)
		}
		return b, nil, nil
	default:
		root := filepath.Join(cfg.Storage.DataDir, "blobs", cfg.Blob.Bucket)
		fs, err := blob.NewFS(root, cfg.Server.PublicURL, []byte(cfg.Blob.SigningKey))
		if err != nil {
			return nil, nil, fmt.Errorf("opening filesystem blob store: %w", err)
		}
		return fs, fs.Handler(), nil
	}
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	blobs, files, err := openBlobs(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	if n, err := store.SeedPrompts(ctx); err != nil {
		slog.Warn("seeding prompts failed", "error", err)
	} else if n > 0 {
		slog.Info("seeded prompts", "count", n)
	}

	llm, err := completion.NewClient(completion.Options{
		APIKey:    cfg.Completion.APIKey,
		BaseURL:   cfg.Completion.BaseURL,
		Model:     cfg.Completion.Model,
		MaxTokens: cfg.Completion.MaxTokens,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	ocrClient := ocr.NewClient(cfg.OCR.BaseURL, cfg.OCR.APIKey).WithLogger(slog.Default().With("component", "ocr"))
	extractor := ocr.NewExtractor(store, blobs, ocrClient, ocr.Options{
		PollInterval: cfg.OCR.PollInterval,
		MaxAttempts:  cfg.OCR.MaxAttempts,
	}).WithLogger(slog.Default().With("component", "ocr"))

	svc := extraction.NewService(store, blobs, llm.WithLogger(slog.Default().With("component", "completion"))).
		WithLogger(slog.Default().With("component", "extraction"))

	return &app{
		store:      store,
		blobs:      blobs,
		files:      files,
		ocr:        extractor,
		extraction: svc,
	}, nil
}

func runServer() error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	slog.Info("starting cvextract", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	handler := api.NewRouter(api.Deps{
		Store:          a.store,
		Blobs:          a.blobs,
		OCR:            a.ocr,
		Extraction:     a.extraction,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTSecret:      cfg.Supabase.JWTSecret,
		Files:          a.files,
	})
	if cfg.Supabase.JWTSecret == "" {
		slog.Warn("SUPABASE_JWT_SECRET not set, /api is unauthenticated")
	}

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("cvextract listening", "addr", addr, "storage", cfg.Storage.Driver, "blob", cfg.Blob.Backend)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      a.store,
		OCR:        a.ocr,
		Extraction: a.extraction,
	}, version)

	slog.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.Client.APIURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	switch {
	case err != nil:
		printStatus("Server", "not reachable at %s", cfg.Client.APIURL)
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "running at %s", cfg.Client.APIURL)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	if err := cfg.Validate(); err != nil {
		printWarning("%v", err)
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Blobs", "%s (bucket %s)", cfg.Blob.Backend, cfg.Blob.Bucket)
	printStatus("OCR", "%s", cfg.OCR.BaseURL)
	printStatus("Model", "%s (max %d tokens)", cfg.Completion.Model, cfg.Completion.MaxTokens)
	printStatus("Auth", "%s", authLabel(cfg.Supabase.JWTSecret))
	return nil
}

func authLabel(secret string) string {
	if secret == "" {
		return "disabled"
	}
	return "supabase jwt"
}
