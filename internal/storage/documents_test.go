package storage

import (
	"context"
	"errors"
	"testing"
)

func seedDocument(t *testing.T, s *Store, id, userID string, status DocumentStatus) Document {
	t.Helper()
	d := Document{
		ID:           id,
		UserID:       userID,
		Title:        "Doc " + id,
		DocumentType: TypeCV,
		FilePath:     userID + "/" + id + ".pdf",
		FileName:     id + ".pdf",
		FileSize:     1024,
	}
	ctx := context.Background()
	if err := s.CreateDocument(ctx, d); err != nil {
		t.Fatalf("CreateDocument(%s): %v", id, err)
	}
	switch status {
	case StatusCompleted:
		if err := s.CompleteDocument(ctx, d.FilePath, "# "+id, userID+"/markdowns/"+id+".md"); err != nil {
			t.Fatalf("CompleteDocument(%s): %v", id, err)
		}
	case StatusError:
		if err := s.FailDocument(ctx, d.FilePath, "boom"); err != nil {
			t.Fatalf("FailDocument(%s): %v", id, err)
		}
	case StatusProcessing:
		if err := s.UpdateDocumentStatus(ctx, d.FilePath, StatusProcessing); err != nil {
			t.Fatalf("UpdateDocumentStatus(%s): %v", id, err)
		}
	}
	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument(%s): %v", id, err)
	}
	return got
}

func TestCreateDocument_DefaultsToPending(t *testing.T) {
	s := openTestStore(t)
	d := seedDocument(t, s, "d1", "u1", StatusPending)

	if d.Status != StatusPending {
		t.Errorf("Status = %q, want pending", d.Status)
	}
	if d.MarkdownContent != nil || d.MarkdownFilePath != nil || d.ExtractionError != nil {
		t.Errorf("new document has OCR fields set: %+v", d)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestCreateDocument_DuplicatePathFails(t *testing.T) {
	s := openTestStore(t)
	seedDocument(t, s, "d1", "u1", StatusPending)

	err := s.CreateDocument(context.Background(), Document{
		ID: "d2", UserID: "u1", Title: "x", DocumentType: TypeCV, FilePath: "u1/d1.pdf", FileName: "d1.pdf",
	})
	if err == nil {
		t.Fatal("expected unique violation on file_path")
	}
}

func TestGetDocumentByPath(t *testing.T) {
	s := openTestStore(t)
	seedDocument(t, s, "d1", "u1", StatusPending)

	d, err := s.GetDocumentByPath(context.Background(), "u1/d1.pdf")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if d.ID != "d1" {
		t.Errorf("ID = %q, want d1", d.ID)
	}

	if _, err := s.GetDocumentByPath(context.Background(), "nope.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocumentByPath(missing) = %v, want ErrNotFound", err)
	}
}

func TestCompleteThenFail_ClearsMarkdown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := seedDocument(t, s, "d1", "u1", StatusCompleted)

	if d.Status != StatusCompleted || d.MarkdownContent == nil || *d.MarkdownContent != "# d1" {
		t.Fatalf("after complete: %+v", d)
	}

	if err := s.FailDocument(ctx, d.FilePath, "Erreur lors de l'extraction avec OCR"); err != nil {
		t.Fatalf("FailDocument: %v", err)
	}
	d, _ = s.GetDocument(ctx, "d1")
	if d.Status != StatusError {
		t.Errorf("Status = %q, want error", d.Status)
	}
	if d.MarkdownContent != nil || d.MarkdownFilePath != nil {
		t.Errorf("markdown not cleared: content=%v path=%v", d.MarkdownContent, d.MarkdownFilePath)
	}
	if d.ExtractionError == nil || *d.ExtractionError != "Erreur lors de l'extraction avec OCR" {
		t.Errorf("ExtractionError = %v", d.ExtractionError)
	}

	if err := s.CompleteDocument(ctx, d.FilePath, "again", "u1/markdowns/d1.md"); err != nil {
		t.Fatalf("CompleteDocument: %v", err)
	}
	d, _ = s.GetDocument(ctx, "d1")
	if d.ExtractionError != nil {
		t.Errorf("ExtractionError = %q, want cleared", *d.ExtractionError)
	}
}

func TestUpdateDocumentStatus_Missing(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateDocumentStatus(context.Background(), "missing.pdf", StatusProcessing)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDocumentStatus(missing) = %v, want ErrNotFound", err)
	}
}

func TestListCompletedDocuments_PreservesOrderAndFilters(t *testing.T) {
	s := openTestStore(t)
	tick(s)
	seedDocument(t, s, "a", "u1", StatusCompleted)
	seedDocument(t, s, "b", "u1", StatusPending)
	seedDocument(t, s, "c", "u1", StatusCompleted)
	seedDocument(t, s, "d", "u1", StatusError)

	docs, err := s.ListCompletedDocuments(context.Background(), []string{"c", "b", "missing", "a", "d", "c"})
	if err != nil {
		t.Fatalf("ListCompletedDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != "c" || docs[1].ID != "a" {
		t.Errorf("order = [%s %s], want [c a]", docs[0].ID, docs[1].ID)
	}
}

func TestListCompletedDocuments_Empty(t *testing.T) {
	s := openTestStore(t)
	docs, err := s.ListCompletedDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListCompletedDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d docs, want 0", len(docs))
	}
}

func TestListCompletedDocumentsByUser_OldestFirst(t *testing.T) {
	s := openTestStore(t)
	tick(s)
	seedDocument(t, s, "first", "u1", StatusCompleted)
	seedDocument(t, s, "other-user", "u2", StatusCompleted)
	seedDocument(t, s, "pending", "u1", StatusPending)
	seedDocument(t, s, "second", "u1", StatusCompleted)

	docs, err := s.ListCompletedDocumentsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListCompletedDocumentsByUser: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != "first" || docs[1].ID != "second" {
		t.Errorf("order = [%s %s], want [first second]", docs[0].ID, docs[1].ID)
	}
}

func TestListDocumentsByUser_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	tick(s)
	seedDocument(t, s, "old", "u1", StatusPending)
	seedDocument(t, s, "new", "u1", StatusError)

	docs, err := s.ListDocumentsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListDocumentsByUser: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "new" {
		t.Fatalf("docs = %+v, want new first", docs)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "d1", "u1", StatusPending)

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteDocument = %v, want ErrNotFound", err)
	}
}
