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

// SessionRepository handles database operations for therapy sessions
type SessionRepository struct {
	db database.DBTX
}

// NewSessionRepository creates a new therapy session repository
func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, patient_id, psychologist_id, session_date, duration_minutes, session_type, notes, created_at"

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	s := &models.Session{}
	var sessionType string
	if err := row.Scan(&s.ID, &s.PatientID, &s.PsychologistID, &s.SessionDate, &s.DurationMinutes, &sessionType, &s.Notes, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.SessionType = models.SessionType(sessionType)
	s.SessionDate = truncateDay(s.SessionDate)
	return s, nil
}

func truncateDay(t time.Time) time.Time {
	// DATE columns come back at midnight in the driver's location; keep the calendar day
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateSession inserts a session and fills in its ID
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	s.SessionDate = truncateDay(s.SessionDate)
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (patient_id, psychologist_id, session_date, duration_minutes, session_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, s.PatientID, s.PsychologistID, s.SessionDate, s.DurationMinutes, string(s.SessionType), s.Notes, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	return nil
}

// GetSession retrieves one session owned by the practitioner
func (r *SessionRepository) GetSession(ctx context.Context, psychologistID string, id int64) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = ? AND psychologist_id = ?"
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, psychologistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns a patient's sessions, newest first. A nil since returns all of them.
func (r *SessionRepository) ListSessions(ctx context.Context, psychologistID string, patientID int64, since *time.Time) ([]models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE patient_id = ? AND psychologist_id = ?"
	args := []any{patientID, psychologistID}
	if since != nil {
		query += " AND session_date >= ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY session_date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// CountSessionsSince counts the practitioner's sessions on or after since
func (r *SessionRepository) CountSessionsSince(ctx context.Context, psychologistID string, since time.Time) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM sessions WHERE psychologist_id = ? AND session_date >= ?"
	if err := r.db.QueryRowContext(ctx, query, psychologistID, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
