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

// PatientRepository handles database operations for patients.
// Every query is scoped by psychologist_id.
type PatientRepository struct {
	db database.DBTX
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db database.DBTX) *PatientRepository {
	return &PatientRepository{db: db}
}

const patientColumns = "id, psychologist_id, name, birth_date, diagnoses, guardian_name, notes, created_at, updated_at"

func scanPatient(row interface{ Scan(...any) error }) (*models.Patient, error) {
	p := &models.Patient{}
	var birth sql.NullTime
	var diagnoses string
	if err := row.Scan(&p.ID, &p.PsychologistID, &p.Name, &birth, &diagnoses, &p.GuardianName, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BirthDate = timePtr(birth)
	p.Diagnoses = []string{}
	if diagnoses != "" {
		if err := json.Unmarshal([]byte(diagnoses), &p.Diagnoses); err != nil {
			return nil, fmt.Errorf("failed to decode diagnoses: %w", err)
		}
	}
	return p, nil
}

func encodeDiagnoses(d []string) (string, error) {
	if d == nil {
		d = []string{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode diagnoses: %w", err)
	}
	return string(b), nil
}

// CreatePatient inserts a patient and fills in its ID and timestamps
func (r *PatientRepository) CreatePatient(ctx context.Context, p *models.Patient) error {
	diagnoses, err := encodeDiagnoses(p.Diagnoses)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO patients (psychologist_id, name, birth_date, diagnoses, guardian_name, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, p.PsychologistID, p.Name, nullTime(p.BirthDate), diagnoses, p.GuardianName, p.Notes, now, now)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPatient retrieves one patient owned by the practitioner
func (r *PatientRepository) GetPatient(ctx context.Context, psychologistID string, id int64) (*models.Patient, error) {
	query := "SELECT " + patientColumns + " FROM patients WHERE id = ? AND psychologist_id = ?"
	p, err := scanPatient(r.db.QueryRowContext(ctx, query, id, psychologistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// ListPatients returns the practitioner's patients ordered by name
func (r *PatientRepository) ListPatients(ctx context.Context, psychologistID string) ([]models.Patient, error) {
	query := "SELECT " + patientColumns + " FROM patients WHERE psychologist_id = ? ORDER BY name"
	rows, err := r.db.QueryContext(ctx, query, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	patients := []models.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

// UpdatePatient saves editable fields; returns false when no owned row matched
func (r *PatientRepository) UpdatePatient(ctx context.Context, p *models.Patient) (bool, error) {
	diagnoses, err := encodeDiagnoses(p.Diagnoses)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	query := `
		UPDATE patients
		SET name = ?, birth_date = ?, diagnoses = ?, guardian_name = ?, notes = ?, updated_at = ?
		WHERE id = ? AND psychologist_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, p.Name, nullTime(p.BirthDate), diagnoses, p.GuardianName, p.Notes, now, p.ID, p.PsychologistID)
	if err != nil {
		return false, fmt.Errorf("failed to update patient: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	p.UpdatedAt = now
	return n > 0, nil
}

// DeletePatient removes an owned patient; goals, sessions and access rows cascade
func (r *PatientRepository) DeletePatient(ctx context.Context, psychologistID string, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM patients WHERE id = ? AND psychologist_id = ?", id, psychologistID)
	if err != nil {
		return false, fmt.Errorf("failed to delete patient: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

// CountPatients returns how many patients the practitioner has
func (r *PatientRepository) CountPatients(ctx context.Context, psychologistID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients WHERE psychologist_id = ?", psychologistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}
