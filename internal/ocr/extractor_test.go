package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjsoftlab/cvextract/internal/blob"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

// fakeOCR scripts the remote OCR service.
type fakeOCR struct {
	mu sync.Mutex

	submitStatus  map[string]int // route -> status; missing routes answer 200
	submitBody    string
	statuses      []string // returned in order; the last one repeats
	statusCode    int
	resultCode    int
	resultBody    string
	statusCalls   int
	submitRoutes  []string
	submittedURLs []string
	authHeaders   []string
}

func newFakeOCR() *fakeOCR {
	return &fakeOCR{
		submitStatus: map[string]int{},
		submitBody:   `{"job_id":"job-1"}`,
		statuses:     []string{"completed"},
		statusCode:   http.StatusOK,
		resultCode:   http.StatusOK,
		resultBody:   `{"markdown":"# Jean Dupont"}`,
	}
}

func (f *fakeOCR) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("x-authentication"))

	switch {
	case r.Method == http.MethodPost && (r.URL.Path == "/api/v1/ocr" || r.URL.Path == "/api/V1/ocr"):
		f.submitRoutes = append(f.submitRoutes, r.URL.Path)
		var body struct {
			URL string `json:"url"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.submittedURLs = append(f.submittedURLs, body.URL)
		if code, ok := f.submitStatus[r.URL.Path]; ok && code != http.StatusOK {
			w.WriteHeader(code)
			io.WriteString(w, "route unavailable")
			return
		}
		io.WriteString(w, f.submitBody)
	case strings.HasPrefix(r.URL.Path, "/api/v1/status/"):
		f.statusCalls++
		if f.statusCode != http.StatusOK {
			w.WriteHeader(f.statusCode)
			return
		}
		i := f.statusCalls - 1
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		json.NewEncoder(w).Encode(map[string]string{"status": f.statuses[i]})
	case strings.HasPrefix(r.URL.Path, "/api/v1/result/"):
		w.WriteHeader(f.resultCode)
		io.WriteString(w, f.resultBody)
	default:
		http.NotFound(w, r)
	}
}

type fixture struct {
	store     *storage.Store
	blobs     *blob.FS
	fake      *fakeOCR
	extractor *Extractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.NewFS(t.TempDir(), "http://files.test", []byte("k"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	fake := newFakeOCR()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "ocr-key")
	ex := NewExtractor(store, blobs, client, Options{PollInterval: time.Millisecond, MaxAttempts: 60})
	return &fixture{store: store, blobs: blobs, fake: fake, extractor: ex}
}

func (f *fixture) addDocument(t *testing.T) storage.Document {
	t.Helper()
	d := storage.Document{
		ID:           "doc-1",
		UserID:       "user-1",
		Title:        "CV Jean",
		DocumentType: storage.TypeCV,
		FilePath:     "user-1/1700000000000-cv.pdf",
		FileName:     "cv.pdf",
		FileSize:     42,
	}
	if err := f.store.CreateDocument(context.Background(), d); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := f.blobs.Upload(context.Background(), d.FilePath, []byte("%PDF"), "application/pdf"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return d
}

func (f *fixture) reload(t *testing.T, id string) storage.Document {
	t.Helper()
	d, err := f.store.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	return d
}

func TestExtract_QueuedThenCompleted(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	statuses := make([]string, 0, 60)
	for range 59 {
		statuses = append(statuses, "QUEUED")
	}
	f.fake.statuses = append(statuses, "Completed")

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Success || res.MarkdownContent != "# Jean Dupont" {
		t.Fatalf("result = %+v", res)
	}
	if f.fake.statusCalls != 60 {
		t.Errorf("status calls = %d, want 60", f.fake.statusCalls)
	}

	got := f.reload(t, doc.ID)
	if got.Status != storage.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.MarkdownContent == nil || *got.MarkdownContent != "# Jean Dupont" {
		t.Errorf("MarkdownContent = %v", got.MarkdownContent)
	}
	if got.MarkdownFilePath == nil || *got.MarkdownFilePath != "user-1/markdowns/cv.md" {
		t.Errorf("MarkdownFilePath = %v, want user-1/markdowns/cv.md", got.MarkdownFilePath)
	}
	if got.ExtractionError != nil {
		t.Errorf("ExtractionError = %q, want nil", *got.ExtractionError)
	}

	stored, err := f.blobs.Download(context.Background(), "user-1/markdowns/cv.md")
	if err != nil {
		t.Fatalf("markdown blob: %v", err)
	}
	if string(stored) != "# Jean Dupont" {
		t.Errorf("markdown blob = %q", stored)
	}
}

func TestExtract_TimeoutAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.statuses = []string{"queued"}

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	want := "OCR processing timeout after 60 attempts"
	if res.ExtractionError != want {
		t.Errorf("ExtractionError = %q, want %q", res.ExtractionError, want)
	}
	if f.fake.statusCalls != 60 {
		t.Errorf("status calls = %d, want 60", f.fake.statusCalls)
	}

	got := f.reload(t, doc.ID)
	if got.Status != storage.StatusError {
		t.Errorf("Status = %q, want error", got.Status)
	}
	if got.ExtractionError == nil || *got.ExtractionError != want {
		t.Errorf("stored ExtractionError = %v, want %q", got.ExtractionError, want)
	}
	if got.MarkdownContent != nil || got.MarkdownFilePath != nil {
		t.Errorf("markdown fields set on error: %v %v", got.MarkdownContent, got.MarkdownFilePath)
	}
}

func TestExtract_FailedStatusStopsImmediately(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.statuses = []string{"failed"}

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "OCR processing failed with status: failed" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
	if f.fake.statusCalls != 1 {
		t.Errorf("status calls = %d, want 1", f.fake.statusCalls)
	}
}

func TestExtract_StatusCheckError(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.statusCode = http.StatusServiceUnavailable

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "OCR status check failed: 503" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
	if f.fake.statusCalls != 1 {
		t.Errorf("status calls = %d, want 1", f.fake.statusCalls)
	}
}

func TestExtract_FallbackRoute(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.submitStatus["/api/v1/ocr"] = http.StatusNotFound

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success through fallback", res)
	}
	if len(f.fake.submitRoutes) != 2 || f.fake.submitRoutes[1] != "/api/V1/ocr" {
		t.Errorf("submit routes = %v, want v1 then V1", f.fake.submitRoutes)
	}
}

func TestExtract_BothSubmitRoutesFail(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.submitStatus["/api/v1/ocr"] = http.StatusInternalServerError
	f.fake.submitStatus["/api/V1/ocr"] = http.StatusInternalServerError

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "OCR processing failed" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
	if f.fake.statusCalls != 0 {
		t.Errorf("status calls = %d, want 0", f.fake.statusCalls)
	}
}

func TestExtract_NoJobID(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.submitBody = `{"accepted":true}`

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "OCR processing failed: No job id returned" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
	if len(f.fake.submitRoutes) != 1 {
		t.Errorf("submit attempts = %d, want 1 (no fallback after a 2xx)", len(f.fake.submitRoutes))
	}
	if f.fake.statusCalls != 0 {
		t.Errorf("status calls = %d, want 0", f.fake.statusCalls)
	}
	if got := f.reload(t, doc.ID); got.Status != storage.StatusError {
		t.Errorf("Status = %q, want error", got.Status)
	}
}

func TestExtract_NumericIDField(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.submitBody = `{"id":12345}`

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success with numeric id", res)
	}
}

func TestExtract_RawTextResult(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.resultBody = "# Plain markdown\n\nbody"

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.MarkdownContent != "# Plain markdown\n\nbody" {
		t.Errorf("MarkdownContent = %q", res.MarkdownContent)
	}
}

func TestExtract_EmptyResult(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.resultBody = `{"pages":3}`

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "Erreur lors de l'extraction avec OCR" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
	if _, err := f.blobs.Download(context.Background(), "user-1/markdowns/cv.md"); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("markdown blob written for empty result: %v", err)
	}
}

func TestExtract_ResultRetrievalError(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)
	f.fake.resultCode = http.StatusBadGateway
	f.fake.resultBody = "upstream down"

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ExtractionError != "OCR result retrieval error: 502 - upstream down" {
		t.Errorf("ExtractionError = %q", res.ExtractionError)
	}
}

func TestExtract_SendsSignedURLAndKey(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)

	if _, err := f.extractor.Extract(context.Background(), doc.FilePath); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(f.fake.submittedURLs) == 0 || !strings.HasPrefix(f.fake.submittedURLs[0], "http://files.test/blobs/user-1/") {
		t.Errorf("submitted URLs = %v, want a signed blob URL", f.fake.submittedURLs)
	}
	for _, h := range f.fake.authHeaders {
		if h != "ocr-key" {
			t.Fatalf("x-authentication = %q, want ocr-key", h)
		}
	}
}

func TestExtract_UnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.extractor.Extract(context.Background(), "user-1/missing.pdf")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Extract(missing) = %v, want ErrDocumentNotFound", err)
	}
	if len(f.fake.submitRoutes) != 0 {
		t.Errorf("OCR called for unknown document")
	}
}

func TestExtract_EmptyPath(t *testing.T) {
	f := newFixture(t)
	if _, err := f.extractor.Extract(context.Background(), "  "); !errors.Is(err, ErrFilePathRequired) {
		t.Fatalf("Extract(\"\") = %v, want ErrFilePathRequired", err)
	}
}

func TestExtract_RecoversFromEarlierError(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t)

	f.fake.statuses = []string{"failed"}
	if _, err := f.extractor.Extract(context.Background(), doc.FilePath); err != nil {
		t.Fatalf("first Extract: %v", err)
	}

	f.fake.mu.Lock()
	f.fake.statuses = []string{"completed"}
	f.fake.statusCalls = 0
	f.fake.mu.Unlock()

	res, err := f.extractor.Extract(context.Background(), doc.FilePath)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if !res.Success {
		t.Fatalf("second result = %+v", res)
	}
	if got := f.reload(t, doc.ID); got.ExtractionError != nil {
		t.Errorf("ExtractionError = %q, want cleared", *got.ExtractionError)
	}
}

func TestParseJobID(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{`{"job_id":"abc"}`, "abc", false},
		{`{"job_id":"","id":"fallback"}`, "fallback", false},
		{`{"id":7}`, "7", false},
		{`{}`, "", true},
		{`not json`, "", true},
	}
	for _, tt := range tests {
		got, err := parseJobID([]byte(tt.body))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseJobID(%s) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseJobID(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		body, want string
	}{
		{`{"markdown":"md","content":"c"}`, "md"},
		{`{"markdown":"","content":"c"}`, "c"},
		{`{"text":"t"}`, "t"},
		{`{"other":"x"}`, ""},
		{`[1,2]`, ""},
		{"# raw", "# raw"},
	}
	for _, tt := range tests {
		if got := parseResult([]byte(tt.body)); got != tt.want {
			t.Errorf("parseResult(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
