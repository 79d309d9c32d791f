package storage

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed/prompts.yaml
var seedPromptsYAML []byte

type seedFile struct {
	Prompts []seedPrompt `yaml:"prompts"`
}

type seedPrompt struct {
	Name          string `yaml:"name"`
	Title         string `yaml:"title"`
	SubTitle      string `yaml:"sub_title"`
	ButtonLabel   string `yaml:"button_label"`
	SystemMessage string `yaml:"system_message"`
	PromptText    string `yaml:"prompt_text"`
	Version       int    `yaml:"version"`
}

// DefaultPrompts returns the built-in prompt set, one per task key.
func DefaultPrompts() ([]Prompt, error) {
	var f seedFile
	if err := yaml.Unmarshal(seedPromptsYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing seed prompts: %w", err)
	}
	prompts := make([]Prompt, 0, len(f.Prompts))
	for _, sp := range f.Prompts {
		if sp.Name == "" || sp.PromptText == "" {
			return nil, fmt.Errorf("seed prompt %q is missing name or prompt_text", sp.Name)
		}
		prompts = append(prompts, Prompt{
			Name:          sp.Name,
			Title:         sp.Title,
			SubTitle:      sp.SubTitle,
			ButtonLabel:   sp.ButtonLabel,
			PromptText:    sp.PromptText,
			SystemMessage: sp.SystemMessage,
			Active:        true,
			Version:       sp.Version,
		})
	}
	return prompts, nil
}

// SeedPrompts inserts every built-in prompt whose name is not stored yet and
// returns how many were added. Existing rows are never touched.
func (s *Store) SeedPrompts(ctx context.Context) (int, error) {
	prompts, err := DefaultPrompts()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, p := range prompts {
		var n int
		if err := s.queryRow(ctx, `SELECT COUNT(*) FROM prompts WHERE name = ?`, p.Name).Scan(&n); err != nil {
			return added, fmt.Errorf("checking prompt %s: %w", p.Name, err)
		}
		if n > 0 {
			continue
		}
		if _, err := s.CreatePrompt(ctx, p); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
