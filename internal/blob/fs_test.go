package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestFS(t *testing.T) (*FS, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f, err := NewFS(t.TempDir(), srv.URL, []byte("test-signing-key"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	mux.Handle(FSPrefix, f.Handler())
	return f, srv
}

func TestFS_UploadDownloadDelete(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	if err := f.Upload(ctx, "u1/markdowns/cv.md", []byte("# CV"), "text/markdown"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	data, err := f.Download(ctx, "u1/markdowns/cv.md")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "# CV" {
		t.Errorf("Download = %q, want %q", data, "# CV")
	}

	if err := f.Upload(ctx, "u1/markdowns/cv.md", []byte("# CV v2"), "text/markdown"); err != nil {
		t.Fatalf("Upload overwrite: %v", err)
	}
	data, _ = f.Download(ctx, "u1/markdowns/cv.md")
	if string(data) != "# CV v2" {
		t.Errorf("Download after overwrite = %q", data)
	}

	if err := f.Delete(ctx, "u1/markdowns/cv.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.Download(ctx, "u1/markdowns/cv.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download after delete = %v, want ErrNotFound", err)
	}
	if err := f.Delete(ctx, "u1/markdowns/cv.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestFS_RejectsTraversal(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "/abs/path", "u1/../../x", "u1//x", `u1\x`} {
		if err := f.Upload(ctx, key, []byte("x"), ""); err == nil {
			t.Errorf("Upload(%q) succeeded, want error", key)
		}
	}
}

func TestFS_SignedURLServesBlob(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	key := "u1/1700000000000-CV Jean Dupont.pdf"
	if err := f.Upload(ctx, key, []byte("%PDF-1.4 fake"), "application/pdf"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	signed, err := f.SignedURL(ctx, key, 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}

	resp, err := http.Get(signed)
	if err != nil {
		t.Fatalf("GET signed url: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "%PDF-1.4 fake" {
		t.Errorf("body = %q", body)
	}
}

func TestFS_TamperedSignatureForbidden(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	if err := f.Upload(ctx, "u1/a.pdf", []byte("a"), ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := f.Upload(ctx, "u2/b.pdf", []byte("b"), ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	signed, err := f.SignedURL(ctx, "u1/a.pdf", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}

	// Reuse the signature of one key for another.
	other := strings.Replace(signed, "u1/a.pdf", "u2/b.pdf", 1)
	resp, err := http.Get(other)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestFS_ExpiredSignatureForbidden(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	if err := f.Upload(ctx, "u1/a.pdf", []byte("a"), ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	f.now = func() time.Time { return past }
	signed, err := f.SignedURL(ctx, "u1/a.pdf", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	f.now = time.Now

	resp, err := http.Get(signed)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestFS_SignedURLShape(t *testing.T) {
	f, srv := newTestFS(t)
	signed, err := f.SignedURL(context.Background(), "u1/a b.pdf", 600*time.Second)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(signed, srv.URL+FSPrefix) {
		t.Errorf("url = %q, want prefix %q", signed, srv.URL+FSPrefix)
	}
	if u.Path != "/blobs/u1/a b.pdf" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("sig") == "" || u.Query().Get("expires") == "" {
		t.Errorf("query = %q, want sig and expires", u.RawQuery)
	}
}

func TestMarkdownKey(t *testing.T) {
	tests := []struct {
		user, name, want string
	}{
		{"u1", "cv.pdf", "u1/markdowns/cv.md"},
		{"u1", "CV.PDF", "u1/markdowns/CV.md"},
		{"u1", "notes", "u1/markdowns/notes.md"},
		{"u1", "scan.pdf.bak", "u1/markdowns/scan.pdf.bak.md"},
	}
	for _, tt := range tests {
		if got := MarkdownKey(tt.user, tt.name); got != tt.want {
			t.Errorf("MarkdownKey(%q, %q) = %q, want %q", tt.user, tt.name, got, tt.want)
		}
	}
}
