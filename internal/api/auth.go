package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fjsoftlab/cvextract/internal/extraction"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

type subjectKey struct{}

// SubjectFromContext returns the authenticated user id, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}

// SupabaseAuth verifies HS256 access tokens signed with secret and stores
// their subject in the request context.
func SupabaseAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}

			token, err := parser.Parse(auth[len(prefix):], func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "token has no subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
		})
	}
}

// authorizeUser writes a 403 and returns false when the caller is
// authenticated as someone other than userID. Without a subject in the
// context (auth disabled) every user is allowed.
func authorizeUser(w http.ResponseWriter, r *http.Request, userID string) bool {
	sub, ok := SubjectFromContext(r.Context())
	if !ok || sub == userID {
		return true
	}
	httpError(w, http.StatusForbidden, "permission_error", "not allowed to access data of another user")
	return false
}

// authorizeExtraction binds req to the authenticated caller: an empty userId
// becomes the subject, and both the userId and every existing document must
// belong to it. Unknown document ids are left to the pipeline.
func authorizeExtraction(w http.ResponseWriter, r *http.Request, store *storage.Store, req *extraction.Request) bool {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		return true
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = sub
	}
	if !authorizeUser(w, r, strings.TrimSpace(req.UserID)) {
		return false
	}

	for _, id := range req.DocumentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		doc, err := store.GetDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return false
		}
		if !authorizeUser(w, r, doc.UserID) {
			return false
		}
	}
	return true
}

// authorizeFilePath checks that the document stored at filePath, if any,
// belongs to the caller.
func authorizeFilePath(w http.ResponseWriter, r *http.Request, store *storage.Store, filePath string) bool {
	if _, ok := SubjectFromContext(r.Context()); !ok || filePath == "" {
		return true
	}
	doc, err := store.GetDocumentByPath(r.Context(), filePath)
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
		return false
	}
	return authorizeUser(w, r, doc.UserID)
}
