package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjsoftlab/cvextract/internal/extraction"
	"github.com/fjsoftlab/cvextract/internal/ocr"
)

type extractPDFRequest struct {
	FilePath string `json:"filePath"`
}

type launchRequest struct {
	extraction.Request
	Key string `json:"key"`
}

func handleExtractPDF(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req extractPDFRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if !authorizeFilePath(w, r, deps.Store, req.FilePath) {
			return
		}

		// The poll loop outlives the client connection.
		res, err := deps.OCR.Extract(context.WithoutCancel(r.Context()), req.FilePath)
		switch {
		case errors.Is(err, ocr.ErrFilePathRequired):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, ocr.ErrDocumentNotFound):
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		case err != nil:
			deps.logger().Error("pdf extraction failed", "file_path", req.FilePath, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		code := http.StatusOK
		if !res.Success {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, res)
	}
}

func handleExtractTask(deps Deps, task extraction.Task) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req extraction.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if !authorizeExtraction(w, r, deps.Store, &req) {
			return
		}

		resp, err := deps.Extraction.Run(r.Context(), task, req)
		if err != nil {
			extractionError(w, deps.logger().With("task", task.Key()), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleLaunch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req launchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if !authorizeExtraction(w, r, deps.Store, &req.Request) {
			return
		}

		resp, err := deps.Extraction.Launch(r.Context(), req.Key, req.Request)
		if err != nil {
			extractionError(w, deps.logger().With("task", req.Key), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
