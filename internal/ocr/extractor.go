// Package ocr turns an uploaded PDF into markdown through the remote OCR
// service and records the outcome on the document row.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/fjsoftlab/cvextract/internal/blob"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

const (
	signedURLTTL        = 600 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60
)

var (
	ErrFilePathRequired = errors.New("filePath is required")
	ErrDocumentNotFound = errors.New("document not found")
	ErrJobFailed        = errors.New("OCR processing failed with status: failed")
	ErrEmptyResult      = errors.New("Erreur lors de l'extraction avec OCR")

	errQueued = errors.New("OCR job still queued")
)

// DocumentStore is the subset of storage.Store the extractor needs.
type DocumentStore interface {
	GetDocumentByPath(ctx context.Context, filePath string) (storage.Document, error)
	UpdateDocumentStatus(ctx context.Context, filePath string, status storage.DocumentStatus) error
	CompleteDocument(ctx context.Context, filePath, markdown, markdownPath string) error
	FailDocument(ctx context.Context, filePath, message string) error
}

// Service is the remote OCR API.
type Service interface {
	Submit(ctx context.Context, fileURL string) (string, error)
	Status(ctx context.Context, jobID string) (string, error)
	Result(ctx context.Context, jobID string) (string, error)
}

// Result is the outcome of one extraction. A handled OCR failure has
// Success false and the message that was stored on the document.
type Result struct {
	Success         bool   `json:"success"`
	MarkdownContent string `json:"markdownContent"`
	ExtractionError string `json:"extractionError,omitempty"`
}

// Options tunes the poll loop.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
}

type Extractor struct {
	docs         DocumentStore
	blobs        blob.Store
	ocr          Service
	pollInterval time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

func NewExtractor(docs DocumentStore, blobs blob.Store, svc Service, opts Options) *Extractor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Extractor{
		docs:         docs,
		blobs:        blobs,
		ocr:          svc,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		logger:       slog.Default(),
	}
}

// WithLogger returns e logging to l.
func (e *Extractor) WithLogger(l *slog.Logger) *Extractor {
	e.logger = l
	return e
}

// Extract runs OCR on the document stored at filePath. Lookup and final
// persistence failures are returned as errors; every other failure is
// recorded on the document and reported through Result.
func (e *Extractor) Extract(ctx context.Context, filePath string) (Result, error) {
	if strings.TrimSpace(filePath) == "" {
		return Result{}, ErrFilePathRequired
	}

	doc, err := e.docs.GetDocumentByPath(ctx, filePath)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, ErrDocumentNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading document: %w", err)
	}

	logger := e.logger.With("document_id", doc.ID, "file_path", filePath)

	if err := e.docs.UpdateDocumentStatus(ctx, filePath, storage.StatusProcessing); err != nil {
		logger.Warn("could not mark document as processing", "error", err)
	}

	logger.Info("starting OCR extraction")
	markdown, markdownKey, runErr := e.run(ctx, doc, logger)

	// The outcome is recorded even when the caller has gone away.
	saveCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		msg := runErr.Error()
		logger.Warn("OCR extraction failed", "error", msg)
		if err := e.docs.FailDocument(saveCtx, filePath, msg); err != nil {
			return Result{}, fmt.Errorf("saving OCR failure: %w", err)
		}
		return Result{Success: false, ExtractionError: msg}, nil
	}

	if err := e.docs.CompleteDocument(saveCtx, filePath, markdown, markdownKey); err != nil {
		return Result{}, fmt.Errorf("saving OCR result: %w", err)
	}
	logger.Info("OCR extraction completed", "markdown_path", markdownKey, "markdown_bytes", len(markdown))
	return Result{Success: true, MarkdownContent: markdown}, nil
}

func (e *Extractor) run(ctx context.Context, doc storage.Document, logger *slog.Logger) (string, string, error) {
	fileURL, err := e.blobs.SignedURL(ctx, doc.FilePath, signedURLTTL)
	if err != nil {
		return "", "", fmt.Errorf("signing file URL: %w", err)
	}

	jobID, err := e.ocr.Submit(ctx, fileURL)
	if err != nil {
		return "", "", err
	}
	logger = logger.With("job_id", jobID)
	logger.Info("OCR job submitted")

	if err := e.wait(ctx, jobID, logger); err != nil {
		return "", "", err
	}

	markdown, err := e.ocr.Result(ctx, jobID)
	if err != nil {
		return "", "", err
	}
	if markdown == "" {
		return "", "", ErrEmptyResult
	}

	key := blob.MarkdownKey(doc.UserID, doc.FileName)
	if err := e.blobs.Upload(ctx, key, []byte(markdown), "text/markdown"); err != nil {
		return "", "", fmt.Errorf("uploading markdown: %w", err)
	}
	return markdown, key, nil
}

// wait polls jobID until it leaves the queued state. Every attempt,
// including the first, is preceded by one poll interval.
func (e *Extractor) wait(ctx context.Context, jobID string, logger *slog.Logger) error {
	timer := time.NewTimer(e.pollInterval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			status, err := e.ocr.Status(ctx, jobID)
			if err != nil {
				return err
			}
			switch status {
			case JobQueued:
				return errQueued
			case JobFailed:
				return ErrJobFailed
			}
			logger.Debug("OCR job left the queue", "status", status, "attempts", attempts)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxAttempts)),
		retry.Delay(e.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errQueued) }),
		retry.LastErrorOnly(true),
	)
	if errors.Is(err, errQueued) {
		return fmt.Errorf("OCR processing timeout after %d attempts", attempts)
	}
	return err
}
