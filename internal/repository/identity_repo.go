package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"abapractice/internal/database"
	"abapractice/internal/models"
)

// IdentityRepository handles database operations for identities, login sessions and reset tokens
type IdentityRepository struct {
	db database.DBTX
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db database.DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `id, email, password_hash, email_confirmed, metadata,
	COALESCE(oauth_provider, ''), COALESCE(oauth_subject, ''), created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*models.Identity, error) {
	identity := &models.Identity{}
	var metadata string
	if err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.EmailConfirmed,
		&metadata,
		&identity.OAuthProvider,
		&identity.OAuthSubject,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &identity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode identity metadata: %w", err)
		}
	}
	return identity, nil
}

// CreateIdentity inserts a new identity. A taken email yields ErrDuplicate.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	metadata, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode identity metadata: %w", err)
	}
	if identity.Metadata == nil {
		metadata = []byte("{}")
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO identities (id, email, password_hash, email_confirmed, metadata, oauth_provider, oauth_subject, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.EmailConfirmed,
		string(metadata),
		nullString(identity.OAuthProvider),
		nullString(identity.OAuthSubject),
		now,
		now,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}
	identity.CreatedAt = now
	identity.UpdatedAt = now
	return nil
}

// GetByEmail retrieves an identity by email address
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := "SELECT " + identityColumns + " FROM identities WHERE email = ?"
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// GetByID retrieves an identity by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := "SELECT " + identityColumns + " FROM identities WHERE id = ?"
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// GetByOAuth retrieves an identity by OAuth provider and subject
func (r *IdentityRepository) GetByOAuth(ctx context.Context, provider, subject string) (*models.Identity, error) {
	query := "SELECT " + identityColumns + " FROM identities WHERE oauth_provider = ? AND oauth_subject = ?"
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, provider, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity by oauth: %w", err)
	}
	return identity, nil
}

// LinkOAuthProvider links an existing identity to an OAuth provider
func (r *IdentityRepository) LinkOAuthProvider(ctx context.Context, id, provider, subject string) error {
	query := `
		UPDATE identities
		SET oauth_provider = ?, oauth_subject = ?, email_confirmed = ?, updated_at = ?
		WHERE id = ?
		AND (oauth_provider IS NULL OR oauth_provider = '')
	`
	result, err := r.db.ExecContext(ctx, query, provider, subject, true, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to link oauth provider: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if rows == 0 {
		return errors.New("oauth provider already linked")
	}
	return nil
}

// UpdatePassword replaces the stored password hash
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := "UPDATE identities SET password_hash = ?, updated_at = ? WHERE id = ?"
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update password: identity %s not found", id)
	}
	return nil
}

// DeleteIdentity removes an identity; sessions and reset tokens cascade
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM identities WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

// CountIdentities returns the number of identities
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return count, nil
}

// CreateSession creates a new login session
func (r *IdentityRepository) CreateSession(ctx context.Context, sessionID, identityID string, expiresAt time.Time) (*models.LoginSession, error) {
	now := time.Now().UTC()
	query := "INSERT INTO login_sessions (id, identity_id, expires_at, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, sessionID, identityID, expiresAt.UTC(), now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &models.LoginSession{ID: sessionID, IdentityID: identityID, ExpiresAt: expiresAt, CreatedAt: now}, nil
}

// GetSession retrieves a login session by ID
func (r *IdentityRepository) GetSession(ctx context.Context, sessionID string) (*models.LoginSession, error) {
	query := "SELECT id, identity_id, expires_at, created_at FROM login_sessions WHERE id = ?"
	session := &models.LoginSession{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.IdentityID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a login session
func (r *IdentityRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM login_sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired login sessions and returns how many went
func (r *IdentityRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM login_sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CreateResetToken stores a password reset token
func (r *IdentityRepository) CreateResetToken(ctx context.Context, token, identityID string, expiresAt time.Time) error {
	query := "INSERT INTO password_reset_tokens (token, identity_id, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, token, identityID, expiresAt.UTC(), false, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// GetResetToken retrieves a password reset token
func (r *IdentityRepository) GetResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := "SELECT token, identity_id, expires_at, created_at, used FROM password_reset_tokens WHERE token = ?"
	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.IdentityID, &t.ExpiresAt, &t.CreatedAt, &t.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return t, nil
}

// MarkResetTokenUsed flags a token so it cannot be replayed
func (r *IdentityRepository) MarkResetTokenUsed(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE password_reset_tokens SET used = ? WHERE token = ?", true, token); err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	return nil
}

// DeleteExpiredResetTokens removes expired or used reset tokens
func (r *IdentityRepository) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE expires_at < ? OR used = ?", now.UTC(), true)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
