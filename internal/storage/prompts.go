package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const promptColumns = `id, name, title, sub_title, button_label, prompt_text, system_message, active, version, created_at`

func scanPrompt(r rowScanner) (Prompt, error) {
	var p Prompt
	var createdAt string
	if err := r.Scan(&p.ID, &p.Name, &p.Title, &p.SubTitle, &p.ButtonLabel, &p.PromptText,
		&p.SystemMessage, &p.Active, &p.Version, &createdAt); err != nil {
		return Prompt{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Prompt{}, err
	}
	p.CreatedAt = t
	return p, nil
}

// GetActivePromptByName returns the highest-version active prompt named name.
func (s *Store) GetActivePromptByName(ctx context.Context, name string) (Prompt, error) {
	p, err := scanPrompt(s.queryRow(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE name = ? AND active = ? ORDER BY version DESC LIMIT 1`, name, true))
	if errors.Is(err, sql.ErrNoRows) {
		return Prompt{}, ErrNotFound
	}
	return p, err
}

// ListActivePrompts returns all active prompts, newest first.
func (s *Store) ListActivePrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.query(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE active = ? ORDER BY created_at DESC, name`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// CreatePrompt inserts p. A missing ID is generated and returned.
func (s *Store) CreatePrompt(ctx context.Context, p Prompt) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	createdAt := s.timestamp()
	if !p.CreatedAt.IsZero() {
		createdAt = formatTime(p.CreatedAt)
	}
	_, err := s.exec(ctx, `
		INSERT INTO prompts (id, name, title, sub_title, button_label, prompt_text, system_message, active, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Title, p.SubTitle, p.ButtonLabel, p.PromptText, p.SystemMessage, p.Active, p.Version, createdAt)
	if err != nil {
		return "", fmt.Errorf("inserting prompt %s: %w", p.Name, err)
	}
	return p.ID, nil
}

// SetPromptActive toggles whether a prompt can be selected by name.
func (s *Store) SetPromptActive(ctx context.Context, id string, active bool) error {
	res, err := s.exec(ctx, `UPDATE prompts SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// SavePromptResult stores the result of promptID for userID, replacing any
// previous result for the same pair.
func (s *Store) SavePromptResult(ctx context.Context, userID, promptID, result string) error {
	_, err := s.exec(ctx, `
		INSERT INTO prompt_result (id, user_id, prompt_id, result, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, prompt_id) DO UPDATE SET
			result = excluded.result,
			updated_at = excluded.updated_at`,
		uuid.New().String(), userID, promptID, result, s.timestamp())
	if err != nil {
		return fmt.Errorf("saving prompt result: %w", err)
	}
	return nil
}

func (s *Store) GetPromptResult(ctx context.Context, userID, promptID string) (PromptResult, error) {
	var r PromptResult
	var updatedAt string
	err := s.queryRow(ctx, `SELECT id, user_id, prompt_id, result, updated_at FROM prompt_result
		WHERE user_id = ? AND prompt_id = ?`, userID, promptID,
	).Scan(&r.ID, &r.UserID, &r.PromptID, &r.Result, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PromptResult{}, ErrNotFound
	}
	if err != nil {
		return PromptResult{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return PromptResult{}, err
	}
	return r, nil
}

// ListPromptResults returns every stored result of userID with the title of
// the prompt that produced it, most recently updated first.
func (s *Store) ListPromptResults(ctx context.Context, userID string) ([]PromptResultView, error) {
	rows, err := s.query(ctx, `
		SELECT r.result, p.id, p.title, p.sub_title
		FROM prompt_result r
		JOIN prompts p ON p.id = r.prompt_id
		WHERE r.user_id = ?
		ORDER BY r.updated_at DESC, p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PromptResultView
	for rows.Next() {
		var v PromptResultView
		if err := rows.Scan(&v.Result, &v.PromptID, &v.Title, &v.SubTitle); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}
