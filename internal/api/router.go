package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjsoftlab/cvextract/internal/blob"
	"github.com/fjsoftlab/cvextract/internal/extraction"
	"github.com/fjsoftlab/cvextract/internal/ocr"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 20 << 20 // 20MB file part
	multipartOverhead  = 1 << 20  // form fields and part headers around the file
)

// PDFExtractor runs OCR over an uploaded document.
type PDFExtractor interface {
	Extract(ctx context.Context, filePath string) (ocr.Result, error)
}

// Extractor runs the AI extraction pipelines.
type Extractor interface {
	Run(ctx context.Context, task extraction.Task, req extraction.Request) (extraction.Response, error)
	Launch(ctx context.Context, key string, req extraction.Request) (extraction.Response, error)
}

type Deps struct {
	Store      *storage.Store
	Blobs      blob.Store
	OCR        PDFExtractor
	Extraction Extractor

	AllowedOrigins []string
	JWTSecret      string       // optional; when empty /api is unauthenticated
	Files          http.Handler // optional; serves signed filesystem blob URLs
	Logger         *slog.Logger // defaults to slog.Default()
	Now            func() time.Time
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware(deps.AllowedOrigins))

	r.Get("/health", handleHealth)
	if deps.Files != nil {
		r.Handle(blob.FSPrefix+"*", deps.Files)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.JWTSecret != "" {
			r.Use(SupabaseAuth(deps.JWTSecret))
		}

		r.Post("/extract/pdf-data", handleExtractPDF(deps))
		r.Post("/extract/individual-data", handleExtractTask(deps, extraction.TaskIndividualData))
		r.Post("/extract/formations", handleExtractTask(deps, extraction.TaskFormations))
		r.Post("/extract/parcours-pro", handleExtractTask(deps, extraction.TaskParcoursPro))
		r.Post("/extract/autres-experience", handleExtractTask(deps, extraction.TaskAutresExperiences))
		r.Post("/extract/realisation", handleExtractTask(deps, extraction.TaskRealisations))
		r.Post("/analysis/openAi", handleExtractTask(deps, extraction.TaskAnalysis))
		r.Post("/launch-extraction", handleLaunch(deps))

		r.Get("/prompts", handleListPrompts(deps))
		r.Get("/prompt-results/{userID}", handleListPromptResults(deps))

		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents/{userID}", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))

		r.Get("/profiles/{userID}", handleGetProfile(deps))
		r.Patch("/profiles/{userID}", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
