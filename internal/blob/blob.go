// Package blob stores document binaries (source PDFs and derived markdown)
// under slash-separated keys and hands out time-limited read URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("blob not found")

// Store is implemented by every blob backend.
type Store interface {
	// SignedURL returns a URL that lets an external service read key until ttl elapses.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Upload writes data under key, replacing any existing object.
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that are empty, absolute, or escape the bucket.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob key is empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

// MarkdownKey returns the key of the markdown derived from the uploaded file
// fileName, e.g. "u1/markdowns/cv.md" for user u1 and "cv.pdf".
func MarkdownKey(userID, fileName string) string {
	name := fileName
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = name[:len(name)-len(".pdf")] + ".md"
	} else {
		name += ".md"
	}
	return userID + "/markdowns/" + name
}
