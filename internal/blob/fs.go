package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FSPrefix is the URL path under which FS serves signed blobs.
const FSPrefix = "/blobs/"

// FS stores blobs as files under a root directory. Signed URLs point back at
// the server's own FSPrefix handler and carry an HMAC over key and expiry.
type FS struct {
	root      string
	publicURL string
	key       []byte
	now       func() time.Time
}

// NewFS creates root if needed. publicURL is the externally reachable base
// of the HTTP server that mounts Handler.
func NewFS(root, publicURL string, signingKey []byte) (*FS, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("blob signing key is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FS{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		key:       signingKey,
		now:       time.Now,
	}, nil
}

func (f *FS) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

func (f *FS) Upload(_ context.Context, key string, data []byte, _ string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	return nil
}

func (f *FS) Download(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

func (f *FS) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (f *FS) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	expires := f.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", f.sign(key, expires))
	return f.publicURL + FSPrefix + escapeKey(key) + "?" + q.Encode(), nil
}

func (f *FS) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(key + "|" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (f *FS) verify(key, expiresParam, sig string) bool {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil || f.now().Unix() > expires {
		return false
	}
	want := f.sign(key, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Handler serves GET and HEAD requests for signed URLs. It must be mounted
// at FSPrefix.
func (f *FS) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, FSPrefix)
		if !f.verify(key, r.URL.Query().Get("expires"), r.URL.Query().Get("sig")) {
			http.Error(w, "invalid or expired signature", http.StatusForbidden)
			return
		}
		p, err := f.path(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "could not open blob", http.StatusInternalServerError)
			return
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			http.Error(w, "could not stat blob", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, filepath.Base(p), info.ModTime(), file)
	})
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
