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

// GoalRepository handles database operations for therapy goals
type GoalRepository struct {
	db database.DBTX
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db database.DBTX) *GoalRepository {
	return &GoalRepository{db: db}
}

const goalColumns = "id, patient_id, psychologist_id, name, category, target_percentage, status, created_at"

func scanGoal(row interface{ Scan(...any) error }) (*models.Goal, error) {
	g := &models.Goal{}
	var status string
	if err := row.Scan(&g.ID, &g.PatientID, &g.PsychologistID, &g.Name, &g.Category, &g.TargetPercentage, &status, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Status = models.GoalStatus(status)
	return g, nil
}

// CreateGoal inserts a goal and fills in its ID
func (r *GoalRepository) CreateGoal(ctx context.Context, g *models.Goal) error {
	if g.Status == "" {
		g.Status = models.GoalActive
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO goals (patient_id, psychologist_id, name, category, target_percentage, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, g.PatientID, g.PsychologistID, g.Name, g.Category, g.TargetPercentage, string(g.Status), now)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	g.ID = id
	g.CreatedAt = now
	return nil
}

// GetGoal retrieves one goal owned by the practitioner
func (r *GoalRepository) GetGoal(ctx context.Context, psychologistID string, id int64) (*models.Goal, error) {
	query := "SELECT " + goalColumns + " FROM goals WHERE id = ? AND psychologist_id = ?"
	g, err := scanGoal(r.db.QueryRowContext(ctx, query, id, psychologistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

// ListGoals returns a patient's goals in creation order
func (r *GoalRepository) ListGoals(ctx context.Context, psychologistID string, patientID int64) ([]models.Goal, error) {
	query := "SELECT " + goalColumns + " FROM goals WHERE patient_id = ? AND psychologist_id = ? ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query, patientID, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []models.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateGoalStatus changes a goal's status; returns false when no owned row matched
func (r *GoalRepository) UpdateGoalStatus(ctx context.Context, psychologistID string, id int64, status models.GoalStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE goals SET status = ? WHERE id = ? AND psychologist_id = ?", string(status), id, psychologistID)
	if err != nil {
		return false, fmt.Errorf("failed to update goal status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// CountActiveGoals counts the practitioner's active goals
func (r *GoalRepository) CountActiveGoals(ctx context.Context, psychologistID string) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM goals WHERE psychologist_id = ? AND status = ?"
	if err := r.db.QueryRowContext(ctx, query, psychologistID, string(models.GoalActive)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count goals: %w", err)
	}
	return count, nil
}
