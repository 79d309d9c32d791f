package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const documentColumns = `id, user_id, title, document_type, file_path, file_name, file_size, status,
	markdown_content, markdown_file_path, extraction_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var d Document
	var content, mdPath, extractErr sql.NullString
	var createdAt, updatedAt string
	if err := r.Scan(&d.ID, &d.UserID, &d.Title, &d.DocumentType, &d.FilePath, &d.FileName, &d.FileSize, &d.Status,
		&content, &mdPath, &extractErr, &createdAt, &updatedAt); err != nil {
		return Document{}, err
	}
	d.MarkdownContent = nullString(content)
	d.MarkdownFilePath = nullString(mdPath)
	d.ExtractionError = nullString(extractErr)

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *Store) scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CreateDocument inserts a new document row. Status defaults to pending.
func (s *Store) CreateDocument(ctx context.Context, d Document) error {
	if d.Status == "" {
		d.Status = StatusPending
	}
	now := s.timestamp()
	_, err := s.exec(ctx, `
		INSERT INTO documents (id, user_id, title, document_type, file_path, file_name, file_size, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Title, d.DocumentType, d.FilePath, d.FileName, d.FileSize, d.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	d, err := scanDocument(s.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// GetDocumentByPath looks a document up by its storage key.
func (s *Store) GetDocumentByPath(ctx context.Context, filePath string) (Document, error) {
	d, err := scanDocument(s.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_path = ?`, filePath))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// ListDocumentsByUser returns every document of userID, newest first.
func (s *Store) ListDocumentsByUser(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	return s.scanDocuments(rows)
}

// ListCompletedDocuments returns the completed documents among ids, in the
// order the ids were given. Unknown or non-completed ids are skipped.
func (s *Store) ListCompletedDocuments(ctx context.Context, ids []string) ([]Document, error) {
	seen := make(map[string]int, len(ids))
	var unique []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = len(unique)
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(unique)), ", ")
	args := make([]any, 0, len(unique)+1)
	args = append(args, StatusCompleted)
	for _, id := range unique {
		args = append(args, id)
	}

	rows, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE status = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := s.scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	ordered := make([]*Document, len(unique))
	for i := range found {
		ordered[seen[found[i].ID]] = &found[i]
	}
	docs := make([]Document, 0, len(found))
	for _, d := range ordered {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}

// ListCompletedDocumentsByUser returns the completed documents of userID,
// oldest first.
func (s *Store) ListCompletedDocumentsByUser(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE user_id = ? AND status = ? ORDER BY created_at ASC, id`, userID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	return s.scanDocuments(rows)
}

// UpdateDocumentStatus sets the status of the document stored at filePath.
func (s *Store) UpdateDocumentStatus(ctx context.Context, filePath string, status DocumentStatus) error {
	res, err := s.exec(ctx, `UPDATE documents SET status = ?, updated_at = ? WHERE file_path = ?`,
		status, s.timestamp(), filePath)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// CompleteDocument records a successful OCR run: the markdown is stored and
// any earlier extraction error is cleared.
func (s *Store) CompleteDocument(ctx context.Context, filePath, markdown, markdownPath string) error {
	res, err := s.exec(ctx, `
		UPDATE documents
		SET status = ?, markdown_content = ?, markdown_file_path = ?, extraction_error = NULL, updated_at = ?
		WHERE file_path = ?`,
		StatusCompleted, markdown, markdownPath, s.timestamp(), filePath)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// FailDocument records a failed OCR run: the error message is stored and any
// earlier markdown is cleared.
func (s *Store) FailDocument(ctx context.Context, filePath, message string) error {
	res, err := s.exec(ctx, `
		UPDATE documents
		SET status = ?, extraction_error = ?, markdown_content = NULL, markdown_file_path = NULL, updated_at = ?
		WHERE file_path = ?`,
		StatusError, message, s.timestamp(), filePath)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
