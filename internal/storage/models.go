package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

type DocumentType string

const (
	TypeCV             DocumentType = "cv"
	TypeLinkedIn       DocumentType = "linkedin"
	TypeInterview      DocumentType = "interview"
	TypeRecommendation DocumentType = "recommendation"
	TypeOther          DocumentType = "other"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeCV, TypeLinkedIn, TypeInterview, TypeRecommendation, TypeOther:
		return true
	}
	return false
}

type Document struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Title            string         `json:"title"`
	DocumentType     DocumentType   `json:"document_type"`
	FilePath         string         `json:"file_path"`
	FileName         string         `json:"file_name"`
	FileSize         int64          `json:"file_size"`
	Status           DocumentStatus `json:"status"`
	MarkdownContent  *string        `json:"markdown_content"`
	MarkdownFilePath *string        `json:"markdown_file_path"`
	ExtractionError  *string        `json:"extraction_error"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ProfileColumn names one of the nullable per-task result columns on profiles.
type ProfileColumn string

const (
	ColumnIndividualData    ProfileColumn = "extracted_individual_data"
	ColumnFormations        ProfileColumn = "extracted_formations_data"
	ColumnParcours          ProfileColumn = "extracted_parcours_data"
	ColumnAutresExperiences ProfileColumn = "extracted_autres_experiences_data"
	ColumnRealisations      ProfileColumn = "extracted_realisations_data"
	ColumnAnalysis          ProfileColumn = "resultat_prompt1"
)

func (c ProfileColumn) valid() bool {
	switch c {
	case ColumnIndividualData, ColumnFormations, ColumnParcours,
		ColumnAutresExperiences, ColumnRealisations, ColumnAnalysis:
		return true
	}
	return false
}

type Profile struct {
	UserID                         string    `json:"user_id"`
	FirstName                      *string   `json:"first_name"`
	LastName                       *string   `json:"last_name"`
	ExtractedIndividualData        *string   `json:"extracted_individual_data"`
	ExtractedFormationsData        *string   `json:"extracted_formations_data"`
	ExtractedParcoursData          *string   `json:"extracted_parcours_data"`
	ExtractedAutresExperiencesData *string   `json:"extracted_autres_experiences_data"`
	ExtractedRealisationsData      *string   `json:"extracted_realisations_data"`
	ResultatPrompt1                *string   `json:"resultat_prompt1"`
	CreatedAt                      time.Time `json:"created_at"`
	UpdatedAt                      time.Time `json:"updated_at"`
}

type Prompt struct {
	ID            string
	Name          string
	Title         string
	SubTitle      string
	ButtonLabel   string
	PromptText    string
	SystemMessage string
	Active        bool
	Version       int
	CreatedAt     time.Time
}

type PromptResult struct {
	ID        string
	UserID    string
	PromptID  string
	Result    string
	UpdatedAt time.Time
}

// PromptResultView is a stored result joined with the prompt that produced it.
type PromptResultView struct {
	Result   string
	PromptID string
	Title    string
	SubTitle string
}
