package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/fjsoftlab/cvextract/internal/completion"
	"github.com/fjsoftlab/cvextract/internal/ocr"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

func TestExtractPDF_Completed(t *testing.T) {
	env := setupRouter(t)
	env.ocr.extractFn = func(_ context.Context, filePath string) (ocr.Result, error) {
		if filePath != "u1/1700000000000-cv.pdf" {
			t.Errorf("filePath = %q, want %q", filePath, "u1/1700000000000-cv.pdf")
		}
		return ocr.Result{Success: true, MarkdownContent: "# Jean"}, nil
	}

	rr := env.do(t, http.MethodPost, "/api/extract/pdf-data", `{"filePath":"u1/1700000000000-cv.pdf"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var res ocr.Result
	json.NewDecoder(rr.Body).Decode(&res)
	if !res.Success || res.MarkdownContent != "# Jean" {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractPDF_HandledFailure(t *testing.T) {
	env := setupRouter(t)
	env.ocr.extractFn = func(context.Context, string) (ocr.Result, error) {
		return ocr.Result{Success: false, ExtractionError: "OCR processing timeout after 60 attempts"}, nil
	}

	rr := env.do(t, http.MethodPost, "/api/extract/pdf-data", `{"filePath":"u1/x.pdf"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	var res map[string]any
	json.NewDecoder(rr.Body).Decode(&res)
	if res["success"] != false {
		t.Errorf("success = %v, want false", res["success"])
	}
	if res["extractionError"] != "OCR processing timeout after 60 attempts" {
		t.Errorf("extractionError = %v", res["extractionError"])
	}
}

func TestExtractPDF_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing path", ocr.ErrFilePathRequired, http.StatusBadRequest},
		{"unknown document", ocr.ErrDocumentNotFound, http.StatusNotFound},
		{"final write failed", errors.New("recording outcome: disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t)
			env.ocr.extractFn = func(context.Context, string) (ocr.Result, error) {
				return ocr.Result{}, tt.err
			}
			rr := env.do(t, http.MethodPost, "/api/extract/pdf-data", `{"filePath":""}`)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestExtractPDF_InvalidBody(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodPost, "/api/extract/pdf-data", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if env.ocr.calls.Load() != 0 {
		t.Error("extractor called on invalid body")
	}
}

func TestExtractIndividualData_MissingUser(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodPost, "/api/extract/individual-data", `{"documentIds":["d1"]}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	body := decodeError(t, rr)
	if body.Error.Message != "userId is required" {
		t.Errorf("message = %q, want %q", body.Error.Message, "userId is required")
	}
	if body.Error.Type != "validation_error" {
		t.Errorf("type = %q, want %q", body.Error.Type, "validation_error")
	}
}

func TestExtractFormations_TwoDocuments(t *testing.T) {
	env := setupRouter(t)
	promptID := env.addPrompt(t, "extract-formations", "Formations:{documents}")
	env.addCompletedDoc(t, "d1", "u1", "CV", "MBA")
	env.addCompletedDoc(t, "d2", "u1", "LinkedIn", "Licence")
	env.llm.reply = `[{"diplome":"MBA"}]`

	rr := env.do(t, http.MethodPost, "/api/extract/formations", `{"documentIds":["d1","d2"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	user := env.llm.last[1].Content
	first, second := strings.Index(user, "=== DOCUMENT: CV (cv) ==="), strings.Index(user, "=== DOCUMENT: LinkedIn (cv) ===")
	if first < 0 || second < 0 || first > second {
		t.Errorf("headers missing or out of order in %q", user)
	}

	var resp struct {
		Success            bool   `json:"success"`
		ExtractedData      string `json:"extractedData"`
		DocumentsCount     int    `json:"documentsCount"`
		ProcessedDocuments []struct {
			ID string `json:"id"`
		} `json:"processedDocuments"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Success || resp.ExtractedData != `[{"diplome":"MBA"}]` || resp.DocumentsCount != 2 {
		t.Errorf("response = %+v", resp)
	}

	p, err := env.store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.ExtractedFormationsData == nil || *p.ExtractedFormationsData != `[{"diplome":"MBA"}]` {
		t.Errorf("extracted_formations_data = %v", p.ExtractedFormationsData)
	}
	if _, err := env.store.GetPromptResult(context.Background(), "u1", promptID); err != nil {
		t.Errorf("GetPromptResult: %v", err)
	}
}

func TestExtract_NoCompletedDocuments(t *testing.T) {
	env := setupRouter(t)
	env.addPrompt(t, "extract-individual-data", "{documents}")
	env.addCompletedDoc(t, "d1", "u1", "CV", "") // stays pending

	rr := env.do(t, http.MethodPost, "/api/extract/individual-data", `{"userId":"u1","documentIds":["d1"]}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if body := decodeError(t, rr); body.Error.Message != "No completed documents found" {
		t.Errorf("message = %q", body.Error.Message)
	}
	if n := env.llm.calls.Load(); n != 0 {
		t.Errorf("completion calls = %d, want 0", n)
	}
}

func TestExtract_RateLimited(t *testing.T) {
	env := setupRouter(t)
	env.addPrompt(t, "extract-realisations", "{documents}")
	env.addCompletedDoc(t, "d1", "u1", "CV", "x")
	raw := `{"error":{"message":"Rate limit reached for gpt-4.1","type":"requests"}}`
	env.llm.err = &completion.APIError{StatusCode: http.StatusTooManyRequests, Body: raw}

	rr := env.do(t, http.MethodPost, "/api/extract/realisation", `{"userId":"u1"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if body := decodeError(t, rr); body.Error.Message != raw {
		t.Errorf("message = %q, want %q", body.Error.Message, raw)
	}
	if _, err := env.store.GetProfile(context.Background(), "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("profile persisted after upstream failure: %v", err)
	}
}

func TestAnalysis_OmitsExtractedData(t *testing.T) {
	env := setupRouter(t)
	env.addPrompt(t, "openai-assistant", "{documents}")
	env.addCompletedDoc(t, "d1", "u1", "CV", "notes")
	env.llm.reply = "Candidat solide."

	rr := env.do(t, http.MethodPost, "/api/analysis/openAi", `{"userId":"u1","documentIds":["d1"],"prompt":"Résume"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp map[string]any
	json.NewDecoder(rr.Body).Decode(&resp)
	if _, ok := resp["extractedData"]; ok {
		t.Errorf("extractedData present in analysis response: %v", resp)
	}
	docs, _ := resp["processedDocuments"].([]any)
	if len(docs) != 1 {
		t.Fatalf("processedDocuments = %v", resp["processedDocuments"])
	}
	if fn := docs[0].(map[string]any)["filename"]; fn != "d1.pdf" {
		t.Errorf("filename = %v, want d1.pdf", fn)
	}
	if !strings.HasPrefix(env.llm.last[1].Content, "Résume\n\n") {
		t.Errorf("user prompt = %q", env.llm.last[1].Content)
	}
}

func TestLaunchExtraction(t *testing.T) {
	env := setupRouter(t)
	env.addPrompt(t, "extract-parcours-professionnel", "{documents}")
	env.addCompletedDoc(t, "d1", "u1", "CV", "x")

	rr := env.do(t, http.MethodPost, "/api/launch-extraction", `{"key":"extract-parcours-professionnel","userId":"u1","documentIds":["d1"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	p, err := env.store.GetProfile(context.Background(), "u1")
	if err != nil || p.ExtractedParcoursData == nil {
		t.Errorf("extracted_parcours_data not written: %v", err)
	}
}

func TestLaunchExtraction_InvalidKey(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodPost, "/api/launch-extraction", `{"key":"extract-hobbies","userId":"u1","documentIds":["d1"]}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	want := "Invalid document process key or Process not yet implemented"
	if body := decodeError(t, rr); body.Error.Message != want {
		t.Errorf("message = %q, want %q", body.Error.Message, want)
	}
}

func TestExtract_MissingPrompt(t *testing.T) {
	env := setupRouter(t)
	env.addCompletedDoc(t, "d1", "u1", "CV", "x")

	rr := env.do(t, http.MethodPost, "/api/extract/individual-data", `{"userId":"u1","documentIds":["d1"]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if body := decodeError(t, rr); body.Error.Message != "Prompt extract-individual-data not found" {
		t.Errorf("message = %q", body.Error.Message)
	}
}
