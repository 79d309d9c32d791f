package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fjsoftlab/cvextract/internal/completion"
	"github.com/fjsoftlab/cvextract/internal/storage"
)

const (
	placeholder       = "{documents}"
	defaultUserPrompt = "Analyse ces documents et fournis un résumé détaillé."
	downloadLimit     = 4
)

func (s *Service) validate(_ context.Context, st State) (State, error) {
	st.UserID = strings.TrimSpace(st.Request.UserID)
	if st.Task.needsUser() && st.UserID == "" {
		return st, validationError("userId is required")
	}
	if st.Task.needsDocuments() {
		var ids []string
		for _, id := range st.Request.DocumentIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return st, validationError("documentIds is required and must be a non-empty array")
		}
		st.Request.DocumentIDs = ids
	}
	return st, nil
}

func (s *Service) fetch(ctx context.Context, st State) (State, error) {
	var docs []storage.Document
	var err error
	switch st.Task.fetchMode() {
	case fetchByOwner:
		docs, err = s.store.ListCompletedDocumentsByUser(ctx, st.UserID)
	case fetchByIDs:
		docs, err = s.store.ListCompletedDocuments(ctx, st.Request.DocumentIDs)
	}
	if err != nil {
		return st, &Error{Kind: KindPersistence, Message: "An error occurred while fetching documents", Err: err}
	}
	if len(docs) == 0 {
		return st, &Error{Kind: KindNotFound, Message: "No completed documents found"}
	}

	if st.UserID == "" {
		owner := docs[0].UserID
		for _, d := range docs[1:] {
			if d.UserID != owner {
				return st, validationError("documents belong to more than one user")
			}
		}
		st.UserID = owner
	}

	st.Documents = docs
	return st, nil
}

// markdown is the resolved text of one document.
type markdown struct {
	text  string
	found bool
	err   error
}

// resolve loads the markdown of every document. With preferFile the stored
// file wins over the inline copy; otherwise the inline copy is used when
// present. Downloads run concurrently; results keep document order.
func (s *Service) resolve(ctx context.Context, docs []storage.Document, preferFile bool) []markdown {
	out := make([]markdown, len(docs))

	var g errgroup.Group
	g.SetLimit(downloadLimit)
	for i, d := range docs {
		inline := d.MarkdownContent != nil && *d.MarkdownContent != ""
		hasFile := d.MarkdownFilePath != nil && *d.MarkdownFilePath != ""

		if inline && !(preferFile && hasFile) {
			out[i] = markdown{text: *d.MarkdownContent, found: true}
			continue
		}
		if !hasFile {
			continue
		}

		path := *d.MarkdownFilePath
		g.Go(func() error {
			data, err := s.blobs.Download(ctx, path)
			if err != nil {
				s.logger.Warn("could not download markdown", "document_id", d.ID, "path", path, "error", err)
				out[i] = markdown{err: err}
				return nil
			}
			out[i] = markdown{text: string(data), found: true}
			return nil
		})
	}
	g.Wait()
	return out
}

func (s *Service) combine(ctx context.Context, st State) (State, error) {
	style := st.Task.combineStyle()
	contents := s.resolve(ctx, st.Documents, style == styleAnalysis)

	var b strings.Builder
	var summaries []DocumentSummary
	switch style {
	case styleBanner:
		for i, d := range st.Documents {
			fmt.Fprintf(&b, "\n\n=== DOCUMENT: %s (%s) ===\n", d.Title, d.DocumentType)
			switch c := contents[i]; {
			case c.found:
				b.WriteString(c.text)
			case c.err != nil:
				fmt.Fprintf(&b, "[Erreur lors du traitement du fichier: %s]", *d.MarkdownFilePath)
			default:
				b.WriteString("[Aucun contenu disponible pour ce document]")
			}
			summaries = append(summaries, DocumentSummary{ID: d.ID, Title: d.Title, Type: d.DocumentType})
		}

	case styleOwner:
		for i, d := range st.Documents {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "=== Document: %s ===\n%s", d.Title, contents[i].text)
			summaries = append(summaries, DocumentSummary{ID: d.ID, Title: d.Title, Type: d.DocumentType})
		}

	case styleAnalysis:
		for i, d := range st.Documents {
			if !contents[i].found {
				continue
			}
			fmt.Fprintf(&b, "\n\n## Document: %s (%s)\nFichier: %s\n\n", d.Title, d.DocumentType, d.FileName)
			b.WriteString(contents[i].text)
			summaries = append(summaries, DocumentSummary{Title: d.Title, Type: d.DocumentType, Filename: d.FileName})
		}
	}

	st.Combined = b.String()
	st.Summaries = summaries
	return st, nil
}

func (s *Service) render(ctx context.Context, st State) (State, error) {
	name := st.Task.Key()
	p, err := s.store.GetActivePromptByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return st, &Error{Kind: KindPersistence, Message: fmt.Sprintf("Prompt %s not found", name), Err: err}
	}
	if err != nil {
		return st, &Error{Kind: KindPersistence, Message: "An error occurred while loading the prompt", Err: err}
	}

	rendered := strings.Replace(p.PromptText, placeholder, st.Combined, 1)
	if st.Task == TaskAnalysis {
		lead := strings.TrimSpace(st.Request.Prompt)
		if lead == "" {
			lead = defaultUserPrompt
		}
		rendered = lead + "\n\n" + rendered
	}

	st.Prompt = p
	st.System = p.SystemMessage
	st.User = rendered
	return st, nil
}

func (s *Service) complete(ctx context.Context, st State) (State, error) {
	result, err := s.llm.Complete(ctx, []completion.Message{
		{Role: completion.RoleSystem, Content: st.System},
		{Role: completion.RoleUser, Content: st.User},
	})
	if err != nil {
		return st, &Error{Kind: KindUpstream, Message: err.Error(), Err: err}
	}
	st.Result = result
	return st, nil
}

func (s *Service) persist(ctx context.Context, st State) (State, error) {
	if err := s.store.SavePromptResult(ctx, st.UserID, st.Prompt.ID, st.Result); err != nil {
		return st, &Error{Kind: KindPersistence, Message: "An error occurred while saving the prompt result", Err: err}
	}
	if err := s.store.UpsertProfileColumn(ctx, st.UserID, st.Task.Column(), st.Result); err != nil {
		return st, &Error{Kind: KindPersistence, Message: "An error occurred while updating the profile", Err: err}
	}
	return st, nil
}

func (s *Service) respond(_ context.Context, st State) (State, error) {
	resp := Response{
		Success:            true,
		DocumentsCount:     len(st.Documents),
		ProcessedDocuments: st.Summaries,
	}
	if resp.ProcessedDocuments == nil {
		resp.ProcessedDocuments = []DocumentSummary{}
	}
	if st.Task != TaskAnalysis {
		data := st.Result
		resp.ExtractedData = &data
	}
	st.Response = resp
	return st, nil
}
