package repository

import (
	"context"
	"fmt"
	"time"

	"abapractice/internal/database"
	"abapractice/internal/models"
)

// ProgressRepository handles database operations for progress entries.
// Entries carry no practitioner column, so reads join through sessions for scoping.
type ProgressRepository struct {
	db database.DBTX
}

// NewProgressRepository creates a new progress entry repository
func NewProgressRepository(db database.DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = "pe.id, pe.session_id, pe.goal_id, pe.trials, pe.correct, pe.prompt_level, pe.notes, pe.created_at"

func scanProgress(row interface{ Scan(...any) error }) (*models.ProgressEntry, error) {
	e := &models.ProgressEntry{}
	var level string
	if err := row.Scan(&e.ID, &e.SessionID, &e.GoalID, &e.Trials, &e.Correct, &level, &e.Notes, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.PromptLevel = models.PromptLevel(level)
	return e, nil
}

// CreateEntry inserts a progress entry and fills in its ID
func (r *ProgressRepository) CreateEntry(ctx context.Context, e *models.ProgressEntry) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO progress_entries (session_id, goal_id, trials, correct, prompt_level, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, e.SessionID, e.GoalID, e.Trials, e.Correct, string(e.PromptLevel), e.Notes, now)
	if err != nil {
		return fmt.Errorf("failed to create progress entry: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// ListBySession returns the entries recorded in one owned session
func (r *ProgressRepository) ListBySession(ctx context.Context, psychologistID string, sessionID int64) ([]models.ProgressEntry, error) {
	query := "SELECT " + progressColumns + `
		FROM progress_entries pe
		JOIN sessions s ON s.id = pe.session_id
		WHERE pe.session_id = ? AND s.psychologist_id = ?
		ORDER BY pe.created_at, pe.id`
	return r.list(ctx, query, sessionID, psychologistID)
}

// ListForPatient returns a patient's entries whose session falls on or after since.
// A nil since returns every entry.
func (r *ProgressRepository) ListForPatient(ctx context.Context, psychologistID string, patientID int64, since *time.Time) ([]models.ProgressEntry, error) {
	query := "SELECT " + progressColumns + `
		FROM progress_entries pe
		JOIN sessions s ON s.id = pe.session_id
		JOIN goals g ON g.id = pe.goal_id
		WHERE s.patient_id = ? AND s.psychologist_id = ? AND g.psychologist_id = ?`
	args := []any{patientID, psychologistID, psychologistID}
	if since != nil {
		query += " AND s.session_date >= ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY s.session_date, pe.created_at, pe.id"
	return r.list(ctx, query, args...)
}

func (r *ProgressRepository) list(ctx context.Context, query string, args ...any) ([]models.ProgressEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress entries: %w", err)
	}
	defer rows.Close()

	entries := []models.ProgressEntry{}
	for rows.Next() {
		e, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
