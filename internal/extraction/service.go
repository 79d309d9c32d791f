// Package extraction runs the AI extraction pipelines: gather the completed
// documents of a user, render the task prompt over their markdown, ask the
// completion service and store the answer on the profile.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjsoftlab/cvextract/internal/completion"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

// Store is the subset of storage.Store the pipelines need.
type Store interface {
	ListCompletedDocuments(ctx context.Context, ids []string) ([]storage.Document, error)
	ListCompletedDocumentsByUser(ctx context.Context, userID string) ([]storage.Document, error)
	GetActivePromptByName(ctx context.Context, name string) (storage.Prompt, error)
	SavePromptResult(ctx context.Context, userID, promptID, result string) error
	UpsertProfileColumn(ctx context.Context, userID string, col storage.ProfileColumn, value string) error
}

// Downloader reads markdown files from blob storage.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Completer sends a chat completion and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, messages []completion.Message) (string, error)
}

type Service struct {
	store  Store
	blobs  Downloader
	llm    Completer
	logger *slog.Logger
}

func NewService(store Store, blobs Downloader, llm Completer) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		llm:    llm,
		logger: slog.Default(),
	}
}

// WithLogger returns s logging to l.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

func (s *Service) pipeline() Pipeline {
	return Pipeline{
		s.validate,
		s.fetch,
		s.combine,
		s.render,
		s.complete,
		s.persist,
		s.respond,
	}
}

// Run executes task for req. Failures are always *Error.
func (s *Service) Run(ctx context.Context, task Task, req Request) (Response, error) {
	if task.Key() == "" {
		return Response{}, ErrInvalidTask
	}

	start := time.Now()
	logger := s.logger.With("task", task.Key())
	logger.Info("extraction started", "user_id", req.UserID, "document_ids", len(req.DocumentIDs))

	st, err := s.pipeline().Run(ctx, State{Task: task, Request: req})
	if err != nil {
		logger.Warn("extraction failed", "user_id", st.UserID, "kind", KindOf(err).String(), "error", err)
		return Response{}, err
	}

	logger.Info("extraction completed",
		"user_id", st.UserID,
		"documents", len(st.Documents),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return st.Response, nil
}

// Launch runs the task named by key, as sent by the frontend's dispatcher.
func (s *Service) Launch(ctx context.Context, key string, req Request) (Response, error) {
	task, ok := ParseTask(key)
	if !ok {
		return Response{}, ErrInvalidTask
	}
	return s.Run(ctx, task, req)
}
