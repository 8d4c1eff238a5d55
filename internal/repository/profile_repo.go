package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"abapractice/internal/database"
	"abapractice/internal/models"
)

// ProfileRepository handles database operations for profiles
type ProfileRepository struct {
	db database.DBTX
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db database.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// CreateProfile inserts the profile row for an identity
func (r *ProfileRepository) CreateProfile(ctx context.Context, id, fullName string, role models.Role) (*models.Profile, error) {
	now := time.Now().UTC()
	query := "INSERT INTO profiles (id, full_name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, id, fullName, string(role), now, now); err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &models.Profile{ID: id, FullName: fullName, Role: role, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProfile retrieves a profile by identity ID
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	query := "SELECT id, full_name, role, created_at, updated_at FROM profiles WHERE id = ?"
	p := &models.Profile{}
	var role string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Role = models.Role(role)
	return p, nil
}

// UpdateFullName changes the display name
func (r *ProfileRepository) UpdateFullName(ctx context.Context, id, fullName string) error {
	query := "UPDATE profiles SET full_name = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, fullName, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile row
func (r *ProfileRepository) DeleteProfile(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
