package extraction

import (
	"context"

	"github.com/fjsoftlab/cvextract/internal/storage"
)

// Request is the input shared by every task. Fields a task does not use are
// ignored.
type Request struct {
	UserID      string   `json:"userId"`
	DocumentIDs []string `json:"documentIds"`
	Prompt      string   `json:"prompt,omitempty"`
}

// DocumentSummary describes one document that fed a completion.
type DocumentSummary struct {
	ID       string               `json:"id,omitempty"`
	Title    string               `json:"title"`
	Type     storage.DocumentType `json:"type"`
	Filename string               `json:"filename,omitempty"`
}

// Response is returned on success. ExtractedData is omitted for the
// free-form analysis.
type Response struct {
	Success            bool              `json:"success"`
	ExtractedData      *string           `json:"extractedData,omitempty"`
	DocumentsCount     int               `json:"documentsCount"`
	ProcessedDocuments []DocumentSummary `json:"processedDocuments"`
}

// State flows through the steps of a pipeline. Each step receives a copy and
// returns the next state.
type State struct {
	Task      Task
	Request   Request
	UserID    string
	Documents []storage.Document
	Combined  string
	Summaries []DocumentSummary
	Prompt    storage.Prompt
	System    string
	User      string
	Result    string
	Response  Response
}

// Step is one stage of a pipeline.
type Step func(ctx context.Context, st State) (State, error)

// Pipeline runs its steps in order and stops at the first error.
type Pipeline []Step

func (p Pipeline) Run(ctx context.Context, st State) (State, error) {
	for _, step := range p {
		next, err := step(ctx, st)
		if err != nil {
			return st, err
		}
		st = next
	}
	return st, nil
}
