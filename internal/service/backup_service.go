package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/database"
)

// BackupVersion is written into every export
const BackupVersion = "1.0"

// BackupData is the complete clinical-data backup. Identities and profiles
// are not part of it; a restore expects the practitioners to exist already.
type BackupData struct {
	Version       string               `json:"version"`
	ExportedAt    time.Time            `json:"exported_at"`
	DatabaseType  string               `json:"database_type"`
	Patients      []PatientBackup      `json:"patients"`
	Goals         []GoalBackup         `json:"goals"`
	Sessions      []SessionBackup      `json:"sessions"`
	Entries       []ProgressBackup     `json:"progress_entries"`
	FamilyAccess  []FamilyAccessBackup `json:"family_access"`
	Subscriptions []SubscriptionBackup `json:"subscriptions"`
}

// PatientBackup is a patient row
type PatientBackup struct {
	ID             int64      `json:"id"`
	PsychologistID string     `json:"psychologist_id"`
	Name           string     `json:"name"`
	BirthDate      *time.Time `json:"birth_date"`
	Diagnoses      string     `json:"diagnoses"`
	GuardianName   string     `json:"guardian_name"`
	Notes          string     `json:"notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GoalBackup is a goal row
type GoalBackup struct {
	ID               int64     `json:"id"`
	PatientID        int64     `json:"patient_id"`
	PsychologistID   string    `json:"psychologist_id"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	TargetPercentage float64   `json:"target_percentage"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// SessionBackup is a session row
type SessionBackup struct {
	ID              int64     `json:"id"`
	PatientID       int64     `json:"patient_id"`
	PsychologistID  string    `json:"psychologist_id"`
	SessionDate     time.Time `json:"session_date"`
	DurationMinutes int       `json:"duration_minutes"`
	SessionType     string    `json:"session_type"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProgressBackup is a progress entry row
type ProgressBackup struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	GoalID      int64     `json:"goal_id"`
	Trials      int       `json:"trials"`
	Correct     int       `json:"correct"`
	PromptLevel string    `json:"prompt_level"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

// FamilyAccessBackup is a guardian grant row
type FamilyAccessBackup struct {
	ID                 int64      `json:"id"`
	UserID             string     `json:"user_id"`
	PatientID          int64      `json:"patient_id"`
	PsychologistID     string     `json:"psychologist_id"`
	FamilyName         string     `json:"family_name"`
	FamilyEmail        string     `json:"family_email"`
	MustChangePassword bool       `json:"must_change_password"`
	AccessLevel        string     `json:"access_level"`
	CreatedAt          time.Time  `json:"created_at"`
	LastAccessAt       *time.Time `json:"last_access_at"`
}

// SubscriptionBackup is a subscription row
type SubscriptionBackup struct {
	ID               int64      `json:"id"`
	PsychologistID   string     `json:"psychologist_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	return &BackupService{db: db, logger: logger}
}

// Export writes a complete backup to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) (*BackupData, error) {
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	backup, err := s.ExportToWriter(ctx, file)
	if err != nil {
		return nil, err
	}
	return backup, file.Sync()
}

// ExportToWriter writes a complete backup as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.GetDialect().MigrationsSubdir(),
	}

	steps := []struct {
		name string
		fn   func(context.Context, *BackupData) error
	}{
		{"patients", s.exportPatients},
		{"goals", s.exportGoals},
		{"sessions", s.exportSessions},
		{"progress entries", s.exportEntries},
		{"family access", s.exportFamilyAccess},
		{"subscriptions", s.exportSubscriptions},
	}
	for _, step := range steps {
		if err := step.fn(ctx, backup); err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", step.name, err)
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}

	s.logger.Info("backup exported",
		zap.Int("patients", len(backup.Patients)),
		zap.Int("goals", len(backup.Goals)),
		zap.Int("sessions", len(backup.Sessions)),
		zap.Int("progress_entries", len(backup.Entries)),
		zap.Int("family_access", len(backup.FamilyAccess)),
		zap.Int("subscriptions", len(backup.Subscriptions)),
	)
	return backup, nil
}

// Import restores a backup file. With clear set, existing clinical data is
// deleted first. The whole restore runs in one transaction.
func (s *BackupService) Import(ctx context.Context, inputPath string, clear bool) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()
	return s.ImportFromReader(ctx, file, clear)
}

// ImportFromReader restores a backup from a reader
func (s *BackupService) ImportFromReader(ctx context.Context, r io.Reader, clear bool) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	s.logger.Info("importing backup",
		zap.String("version", backup.Version),
		zap.Time("exported_at", backup.ExportedAt),
		zap.Bool("clear", clear),
	)

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if clear {
			if err := clearClinicalData(ctx, tx); err != nil {
				return err
			}
		}
		return importBackup(ctx, tx, &backup)
	})
	if err != nil {
		return err
	}

	if s.db.GetDialect().MigrationsSubdir() == "postgres" {
		if err := s.resetSequences(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("backup import completed")
	return nil
}

// clearTables lists clinical tables children first
var clearTables = []string{"progress_entries", "family_access", "sessions", "goals", "patients", "subscriptions"}

func clearClinicalData(ctx context.Context, tx *database.Tx) error {
	for _, table := range clearTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func importBackup(ctx context.Context, tx *database.Tx, b *BackupData) error {
	for _, p := range b.Patients {
		diagnoses := p.Diagnoses
		if diagnoses == "" {
			diagnoses = "[]"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO patients (id, psychologist_id, name, birth_date, diagnoses, guardian_name, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.PsychologistID, p.Name, nullTimeValue(p.BirthDate), diagnoses, p.GuardianName, p.Notes, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to import patient %d: %w", p.ID, err)
		}
	}
	for _, g := range b.Goals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO goals (id, patient_id, psychologist_id, name, category, target_percentage, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.PatientID, g.PsychologistID, g.Name, g.Category, g.TargetPercentage, g.Status, g.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to import goal %d: %w", g.ID, err)
		}
	}
	for _, se := range b.Sessions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, patient_id, psychologist_id, session_date, duration_minutes, session_type, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			se.ID, se.PatientID, se.PsychologistID, se.SessionDate, se.DurationMinutes, se.SessionType, se.Notes, se.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to import session %d: %w", se.ID, err)
		}
	}
	for _, e := range b.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO progress_entries (id, session_id, goal_id, trials, correct, prompt_level, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SessionID, e.GoalID, e.Trials, e.Correct, e.PromptLevel, e.Notes, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to import progress entry %d: %w", e.ID, err)
		}
	}
	for _, a := range b.FamilyAccess {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO family_access (id, user_id, patient_id, psychologist_id, family_name, family_email, must_change_password, access_level, created_at, last_access_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.UserID, a.PatientID, a.PsychologistID, a.FamilyName, a.FamilyEmail, a.MustChangePassword, a.AccessLevel, a.CreatedAt, nullTimeValue(a.LastAccessAt))
		if err != nil {
			return fmt.Errorf("failed to import family access %d: %w", a.ID, err)
		}
	}
	for _, sub := range b.Subscriptions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (id, psychologist_id, plan, status, current_period_end, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, sub.PsychologistID, sub.Plan, sub.Status, nullTimeValue(sub.CurrentPeriodEnd), sub.CreatedAt, sub.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to import subscription %d: %w", sub.ID, err)
		}
	}
	return nil
}

// resetSequences moves postgres id sequences past the imported ids
func (s *BackupService) resetSequences(ctx context.Context) error {
	for _, table := range clearTables {
		query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)", table, table)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to reset sequence for %s: %w", table, err)
		}
	}
	return nil
}

func (s *BackupService) exportPatients(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, psychologist_id, name, birth_date, diagnoses, guardian_name, notes, created_at, updated_at
		FROM patients ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p PatientBackup
		var birth sql.NullTime
		if err := rows.Scan(&p.ID, &p.PsychologistID, &p.Name, &birth, &p.Diagnoses, &p.GuardianName, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		p.BirthDate = timeOrNil(birth)
		b.Patients = append(b.Patients, p)
	}
	return rows.Err()
}

func (s *BackupService) exportGoals(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, psychologist_id, name, category, target_percentage, status, created_at
		FROM goals ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var g GoalBackup
		if err := rows.Scan(&g.ID, &g.PatientID, &g.PsychologistID, &g.Name, &g.Category, &g.TargetPercentage, &g.Status, &g.CreatedAt); err != nil {
			return err
		}
		b.Goals = append(b.Goals, g)
	}
	return rows.Err()
}

func (s *BackupService) exportSessions(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, psychologist_id, session_date, duration_minutes, session_type, notes, created_at
		FROM sessions ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var se SessionBackup
		if err := rows.Scan(&se.ID, &se.PatientID, &se.PsychologistID, &se.SessionDate, &se.DurationMinutes, &se.SessionType, &se.Notes, &se.CreatedAt); err != nil {
			return err
		}
		b.Sessions = append(b.Sessions, se)
	}
	return rows.Err()
}

func (s *BackupService) exportEntries(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, goal_id, trials, correct, prompt_level, notes, created_at
		FROM progress_entries ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e ProgressBackup
		if err := rows.Scan(&e.ID, &e.SessionID, &e.GoalID, &e.Trials, &e.Correct, &e.PromptLevel, &e.Notes, &e.CreatedAt); err != nil {
			return err
		}
		b.Entries = append(b.Entries, e)
	}
	return rows.Err()
}

func (s *BackupService) exportFamilyAccess(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, patient_id, psychologist_id, family_name, family_email, must_change_password, access_level, created_at, last_access_at
		FROM family_access ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a FamilyAccessBackup
		var last sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.PatientID, &a.PsychologistID, &a.FamilyName, &a.FamilyEmail, &a.MustChangePassword, &a.AccessLevel, &a.CreatedAt, &last); err != nil {
			return err
		}
		a.LastAccessAt = timeOrNil(last)
		b.FamilyAccess = append(b.FamilyAccess, a)
	}
	return rows.Err()
}

func (s *BackupService) exportSubscriptions(ctx context.Context, b *BackupData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, psychologist_id, plan, status, current_period_end, created_at, updated_at
		FROM subscriptions ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sub SubscriptionBackup
		var end sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.PsychologistID, &sub.Plan, &sub.Status, &end, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return err
		}
		sub.CurrentPeriodEnd = timeOrNil(end)
		b.Subscriptions = append(b.Subscriptions, sub)
	}
	return rows.Err()
}

func nullTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timeOrNil(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
