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

// FamilyAccessRepository handles database operations for guardian access grants
type FamilyAccessRepository struct {
	db database.DBTX
}

// NewFamilyAccessRepository creates a new family access repository
func NewFamilyAccessRepository(db database.DBTX) *FamilyAccessRepository {
	return &FamilyAccessRepository{db: db}
}

const familyAccessColumns = `fa.id, fa.user_id, fa.patient_id, fa.psychologist_id, fa.family_name, fa.family_email,
	fa.must_change_password, fa.access_level, fa.created_at, fa.last_access_at`

func scanFamilyAccess(row interface{ Scan(...any) error }, extra ...any) (*models.FamilyAccess, error) {
	a := &models.FamilyAccess{}
	var lastAccess sql.NullTime
	dest := []any{
		&a.ID, &a.UserID, &a.PatientID, &a.PsychologistID, &a.FamilyName, &a.FamilyEmail,
		&a.MustChangePassword, &a.AccessLevel, &a.CreatedAt, &lastAccess,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	a.LastAccessAt = timePtr(lastAccess)
	return a, nil
}

// CreateAccess inserts a new grant and fills in its ID
func (r *FamilyAccessRepository) CreateAccess(ctx context.Context, a *models.FamilyAccess) error {
	if a.AccessLevel == "" {
		a.AccessLevel = models.AccessLevelView
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO family_access (user_id, patient_id, psychologist_id, family_name, family_email, must_change_password, access_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, a.UserID, a.PatientID, a.PsychologistID, a.FamilyName, a.FamilyEmail, a.MustChangePassword, a.AccessLevel, now)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create family access: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// GetAccess retrieves a grant by ID within the practitioner's scope
func (r *FamilyAccessRepository) GetAccess(ctx context.Context, psychologistID string, id int64) (*models.FamilyAccess, error) {
	query := "SELECT " + familyAccessColumns + " FROM family_access fa WHERE fa.id = ? AND fa.psychologist_id = ?"
	a, err := scanFamilyAccess(r.db.QueryRowContext(ctx, query, id, psychologistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family access: %w", err)
	}
	return a, nil
}

// GetAccessForGuardian retrieves a guardian's grant by ID
func (r *FamilyAccessRepository) GetAccessForGuardian(ctx context.Context, userID string, id int64) (*models.FamilyAccess, error) {
	query := "SELECT " + familyAccessColumns + " FROM family_access fa WHERE fa.id = ? AND fa.user_id = ?"
	a, err := scanFamilyAccess(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family access: %w", err)
	}
	return a, nil
}

// GetAccessByPatient retrieves the guardian's grant for a patient
func (r *FamilyAccessRepository) GetAccessByPatient(ctx context.Context, userID string, patientID int64) (*models.FamilyAccess, error) {
	query := "SELECT " + familyAccessColumns + " FROM family_access fa WHERE fa.user_id = ? AND fa.patient_id = ?"
	a, err := scanFamilyAccess(r.db.QueryRowContext(ctx, query, userID, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family access: %w", err)
	}
	return a, nil
}

// DeleteAccess removes a grant within the practitioner's scope
func (r *FamilyAccessRepository) DeleteAccess(ctx context.Context, psychologistID string, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM family_access WHERE id = ? AND psychologist_id = ?", id, psychologistID); err != nil {
		return fmt.Errorf("failed to delete family access: %w", err)
	}
	return nil
}

// RestoreAccess reinserts a deleted grant under its original ID
func (r *FamilyAccessRepository) RestoreAccess(ctx context.Context, a *models.FamilyAccess) error {
	query := `
		INSERT INTO family_access (id, user_id, patient_id, psychologist_id, family_name, family_email, must_change_password, access_level, created_at, last_access_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var lastAccess sql.NullTime
	if a.LastAccessAt != nil {
		lastAccess = sql.NullTime{Time: a.LastAccessAt.UTC(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, a.ID, a.UserID, a.PatientID, a.PsychologistID, a.FamilyName, a.FamilyEmail,
		a.MustChangePassword, a.AccessLevel, a.CreatedAt.UTC(), lastAccess)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to restore family access: %w", err)
	}
	return nil
}

// CountForGuardian counts the grants a guardian still holds
func (r *FamilyAccessRepository) CountForGuardian(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM family_access WHERE user_id = ?", userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count family access: %w", err)
	}
	return count, nil
}

// ListByPatient returns a patient's grants, newest first
func (r *FamilyAccessRepository) ListByPatient(ctx context.Context, psychologistID string, patientID int64) ([]models.FamilyAccess, error) {
	query := "SELECT " + familyAccessColumns + `
		FROM family_access fa
		WHERE fa.patient_id = ? AND fa.psychologist_id = ?
		ORDER BY fa.created_at DESC, fa.id DESC`
	rows, err := r.db.QueryContext(ctx, query, patientID, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family access: %w", err)
	}
	defer rows.Close()

	accesses := []models.FamilyAccess{}
	for rows.Next() {
		a, err := scanFamilyAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan family access: %w", err)
		}
		accesses = append(accesses, *a)
	}
	return accesses, rows.Err()
}

// ListForGuardian returns a guardian's grants with patient names
func (r *FamilyAccessRepository) ListForGuardian(ctx context.Context, userID string) ([]models.GuardianPatient, error) {
	query := "SELECT " + familyAccessColumns + `, p.name
		FROM family_access fa
		JOIN patients p ON p.id = fa.patient_id AND p.psychologist_id = fa.psychologist_id
		WHERE fa.user_id = ?
		ORDER BY p.name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardian access: %w", err)
	}
	defer rows.Close()

	out := []models.GuardianPatient{}
	for rows.Next() {
		var name string
		a, err := scanFamilyAccess(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guardian access: %w", err)
		}
		out = append(out, models.GuardianPatient{Access: *a, PatientName: name})
	}
	return out, rows.Err()
}

// CompletePasswordChange clears the first-login flag on the guardian's grant,
// and on any other grant of the same guardian still pending, since the
// password belongs to the identity. Returns false when the guardian owns no
// such grant.
func (r *FamilyAccessRepository) CompletePasswordChange(ctx context.Context, userID string, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE family_access
		SET must_change_password = ?,
			last_access_at = CASE WHEN id = ? THEN ? ELSE last_access_at END
		WHERE user_id = ? AND (id = ? OR must_change_password = ?)
	`
	result, err := r.db.ExecContext(ctx, query, false, id, now.UTC(), userID, id, true)
	if err != nil {
		return false, fmt.Errorf("failed to update family access: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// TouchLastAccess stamps last_access_at on a guardian's grant
func (r *FamilyAccessRepository) TouchLastAccess(ctx context.Context, userID string, id int64, now time.Time) error {
	query := "UPDATE family_access SET last_access_at = ? WHERE id = ? AND user_id = ?"
	if _, err := r.db.ExecContext(ctx, query, now.UTC(), id, userID); err != nil {
		return fmt.Errorf("failed to touch family access: %w", err)
	}
	return nil
}

// HasPendingPasswordChange reports whether any of the guardian's grants still requires a new password
func (r *FamilyAccessRepository) HasPendingPasswordChange(ctx context.Context, userID string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM family_access WHERE user_id = ? AND must_change_password = ?"
	if err := r.db.QueryRowContext(ctx, query, userID, true).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pending password change: %w", err)
	}
	return count > 0, nil
}
