package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/fjsoftlab/cvextract/internal/blob"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+multipartOverhead)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds the %dMB upload limit", maxUploadSize>>20)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}

		userID := strings.TrimSpace(r.FormValue("userId"))
		if sub, ok := SubjectFromContext(r.Context()); ok && userID == "" {
			userID = sub
		}
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId is required")
			return
		}
		if !authorizeUser(w, r, userID) {
			return
		}
		docType := storage.DocumentType(r.FormValue("documentType"))
		if docType == "" {
			docType = storage.TypeCV
		}
		if !docType.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown documentType %q", docType)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}
		if len(data) > maxUploadSize {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds the %dMB upload limit", maxUploadSize>>20)
			return
		}
		if err := validatePDF(data); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
		if name == "." || name == "/" {
			name = "document.pdf"
		}
		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			title = name
		}

		key := fmt.Sprintf("%s/%d-%s", userID, deps.now().UnixMilli(), name)
		if err := blob.ValidateKey(key); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Blobs.Upload(r.Context(), key, data, "application/pdf"); err != nil {
			deps.logger().Error("uploading document", "file_path", key, "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to store file: %v", err)
			return
		}

		id := uuid.New().String()
		err = deps.Store.CreateDocument(r.Context(), storage.Document{
			ID:           id,
			UserID:       userID,
			Title:        title,
			DocumentType: docType,
			FilePath:     key,
			FileName:     name,
			FileSize:     int64(len(data)),
		})
		if err != nil {
			if delErr := deps.Blobs.Delete(r.Context(), key); delErr != nil {
				deps.logger().Warn("could not remove orphaned upload", "file_path", key, "error", delErr)
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		doc, err := deps.Store.GetDocument(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load document: %v", err)
			return
		}
		deps.logger().Info("document uploaded", "user_id", userID, "file_path", key, "size", len(data))
		writeJSON(w, http.StatusCreated, doc)
	}
}

// validatePDF rejects files the PDF reader cannot open or that have no pages.
func validatePDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid PDF file: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	if reader.NumPage() == 0 {
		return errors.New("invalid PDF file: no pages")
	}
	return nil
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if !authorizeUser(w, r, userID) {
			return
		}

		docs, err := deps.Store.ListDocumentsByUser(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		if !authorizeUser(w, r, doc.UserID) {
			return
		}

		keys := []string{doc.FilePath}
		if doc.MarkdownFilePath != nil && *doc.MarkdownFilePath != "" {
			keys = append(keys, *doc.MarkdownFilePath)
		}
		for _, key := range keys {
			if err := deps.Blobs.Delete(r.Context(), key); err != nil && !errors.Is(err, blob.ErrNotFound) {
				deps.logger().Warn("could not delete blob", "file_path", key, "error", err)
			}
		}

		err = deps.Store.DeleteDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
