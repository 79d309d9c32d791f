package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	var first, last, individual, formations, parcours, autres, realisations, prompt1 sql.NullString
	var createdAt, updatedAt string
	err := s.queryRow(ctx, `
		SELECT user_id, first_name, last_name, extracted_individual_data, extracted_formations_data,
			extracted_parcours_data, extracted_autres_experiences_data, extracted_realisations_data,
			resultat_prompt1, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &first, &last, &individual, &formations, &parcours, &autres, &realisations, &prompt1, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	p.FirstName = nullString(first)
	p.LastName = nullString(last)
	p.ExtractedIndividualData = nullString(individual)
	p.ExtractedFormationsData = nullString(formations)
	p.ExtractedParcoursData = nullString(parcours)
	p.ExtractedAutresExperiencesData = nullString(autres)
	p.ExtractedRealisationsData = nullString(realisations)
	p.ResultatPrompt1 = nullString(prompt1)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpsertProfileNames creates the profile of userID if needed and sets the
// given names. A nil name leaves the stored value unchanged.
func (s *Store) UpsertProfileNames(ctx context.Context, userID string, firstName, lastName *string) (Profile, error) {
	now := s.timestamp()
	_, err := s.exec(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = COALESCE(excluded.first_name, profiles.first_name),
			last_name = COALESCE(excluded.last_name, profiles.last_name),
			updated_at = excluded.updated_at`,
		userID, firstName, lastName, now, now)
	if err != nil {
		return Profile{}, fmt.Errorf("upserting profile names: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

// UpsertProfileColumn writes value into one extraction column of the profile
// of userID, creating the row when it does not exist yet.
func (s *Store) UpsertProfileColumn(ctx context.Context, userID string, col ProfileColumn, value string) error {
	if !col.valid() {
		return fmt.Errorf("unknown profile column %q", col)
	}
	now := s.timestamp()
	_, err := s.exec(ctx, `
		INSERT INTO profiles (user_id, `+string(col)+`, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			`+string(col)+` = excluded.`+string(col)+`,
			updated_at = excluded.updated_at`,
		userID, value, now, now)
	if err != nil {
		return fmt.Errorf("updating profile %s: %w", col, err)
	}
	return nil
}
