package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/database"
	"abapractice/internal/models"
	"abapractice/internal/repository"
	"abapractice/internal/validation"
)

const dateLayout = "2006-01-02"

// PatientInput is the editable part of a patient record
type PatientInput struct {
	Name         string   `json:"name" validate:"required,max=200"`
	BirthDate    string   `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Diagnoses    []string `json:"diagnoses" validate:"max=20,dive,required,max=200"`
	GuardianName string   `json:"guardian_name" validate:"max=200"`
	Notes        string   `json:"notes" validate:"max=5000"`
}

// GoalInput creates a therapy goal
type GoalInput struct {
	Name             string  `json:"name" validate:"required,max=200"`
	Category         string  `json:"category" validate:"max=100"`
	TargetPercentage float64 `json:"target_percentage" validate:"gte=0,lte=100"`
}

// SessionInput records a therapy session
type SessionInput struct {
	SessionDate     string `json:"session_date" validate:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
	SessionType     string `json:"session_type" validate:"required,oneof=individual group parent_training supervision"`
	Notes           string `json:"notes" validate:"max=5000"`
}

// ProgressInput records one block of discrete trials
type ProgressInput struct {
	GoalID      int64  `json:"goal_id" validate:"gt=0"`
	Trials      int    `json:"trials" validate:"gte=0"`
	Correct     int    `json:"correct" validate:"gte=0,ltefield=Trials"`
	PromptLevel string `json:"prompt_level" validate:"required,oneof=independent gestural verbal partial full"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// PatientService manages a practitioner's clinical records. Every call is
// scoped to the practitioner passed in.
type PatientService struct {
	patients *repository.PatientRepository
	goals    *repository.GoalRepository
	sessions *repository.SessionRepository
	progress *repository.ProgressRepository
	logger   *zap.Logger
}

// NewPatientService creates a new patient service
func NewPatientService(db *database.DB, logger *zap.Logger) *PatientService {
	return &PatientService{
		patients: repository.NewPatientRepository(db),
		goals:    repository.NewGoalRepository(db),
		sessions: repository.NewSessionRepository(db),
		progress: repository.NewProgressRepository(db),
		logger:   logger,
	}
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, validation.ValidationError{Field: field, Message: "must be a date in the format " + dateLayout}
	}
	return &t, nil
}

func cleanDiagnoses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (in *PatientInput) apply(p *models.Patient) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return err
	}
	birth, err := parseDate("birth_date", in.BirthDate)
	if err != nil {
		return err
	}
	p.Name = in.Name
	p.BirthDate = birth
	p.Diagnoses = cleanDiagnoses(in.Diagnoses)
	p.GuardianName = strings.TrimSpace(in.GuardianName)
	p.Notes = in.Notes
	return nil
}

// CreatePatient adds a patient to the practitioner's caseload
func (s *PatientService) CreatePatient(ctx context.Context, psychologistID string, in PatientInput) (*models.Patient, error) {
	p := &models.Patient{PsychologistID: psychologistID}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	if err := s.patients.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("patient created", zap.Int64("patient_id", p.ID), zap.String("psychologist_id", psychologistID))
	return p, nil
}

// GetPatient returns one patient or NotFoundError
func (s *PatientService) GetPatient(ctx context.Context, psychologistID string, id int64) (*models.Patient, error) {
	p, err := s.patients.GetPatient(ctx, psychologistID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}
	return p, nil
}

// ListPatients returns the practitioner's caseload
func (s *PatientService) ListPatients(ctx context.Context, psychologistID string) ([]models.Patient, error) {
	return s.patients.ListPatients(ctx, psychologistID)
}

// UpdatePatient replaces the editable fields of a patient
func (s *PatientService) UpdatePatient(ctx context.Context, psychologistID string, id int64, in PatientInput) (*models.Patient, error) {
	p, err := s.GetPatient(ctx, psychologistID, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	ok, err := s.patients.UpdatePatient(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Resource: "patient"}
	}
	return p, nil
}

// DeletePatient removes a patient and, by cascade, its records and family grants
func (s *PatientService) DeletePatient(ctx context.Context, psychologistID string, id int64) error {
	ok, err := s.patients.DeletePatient(ctx, psychologistID, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "patient"}
	}
	s.logger.Info("patient deleted", zap.Int64("patient_id", id), zap.String("psychologist_id", psychologistID))
	return nil
}

// CreateGoal adds a goal to one of the practitioner's patients
func (s *PatientService) CreateGoal(ctx context.Context, psychologistID string, patientID int64, in GoalInput) (*models.Goal, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.GetPatient(ctx, psychologistID, patientID); err != nil {
		return nil, err
	}
	g := &models.Goal{
		PatientID:        patientID,
		PsychologistID:   psychologistID,
		Name:             in.Name,
		Category:         strings.TrimSpace(in.Category),
		TargetPercentage: in.TargetPercentage,
		Status:           models.GoalActive,
	}
	if err := s.goals.CreateGoal(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGoals returns a patient's goals
func (s *PatientService) ListGoals(ctx context.Context, psychologistID string, patientID int64) ([]models.Goal, error) {
	if _, err := s.GetPatient(ctx, psychologistID, patientID); err != nil {
		return nil, err
	}
	return s.goals.ListGoals(ctx, psychologistID, patientID)
}

// UpdateGoalStatus moves a goal between active, paused and achieved
func (s *PatientService) UpdateGoalStatus(ctx context.Context, psychologistID string, goalID int64, status models.GoalStatus) error {
	if !status.Valid() {
		return validation.ValidationError{Field: "status", Message: "must be one of: active paused achieved"}
	}
	ok, err := s.goals.UpdateGoalStatus(ctx, psychologistID, goalID, status)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "goal"}
	}
	return nil
}

// CreateSession records a session for one of the practitioner's patients
func (s *PatientService) CreateSession(ctx context.Context, psychologistID string, patientID int64, in SessionInput) (*models.Session, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	date, err := parseDate("session_date", in.SessionDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetPatient(ctx, psychologistID, patientID); err != nil {
		return nil, err
	}
	session := &models.Session{
		PatientID:       patientID,
		PsychologistID:  psychologistID,
		SessionDate:     *date,
		DurationMinutes: in.DurationMinutes,
		SessionType:     models.SessionType(in.SessionType),
		Notes:           in.Notes,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns one session or NotFoundError
func (s *PatientService) GetSession(ctx context.Context, psychologistID string, sessionID int64) (*models.Session, error) {
	session, err := s.sessions.GetSession(ctx, psychologistID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session"}
	}
	return session, nil
}

// ListSessions returns a patient's sessions, newest first
func (s *PatientService) ListSessions(ctx context.Context, psychologistID string, patientID int64) ([]models.Session, error) {
	if _, err := s.GetPatient(ctx, psychologistID, patientID); err != nil {
		return nil, err
	}
	return s.sessions.ListSessions(ctx, psychologistID, patientID, nil)
}

// RecordProgress adds a trial block to a session. The goal must belong to
// the session's patient. Counts are checked here so reports never see
// correct > trials from this path.
func (s *PatientService) RecordProgress(ctx context.Context, psychologistID string, sessionID int64, in ProgressInput) (*models.ProgressEntry, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	session, err := s.GetSession(ctx, psychologistID, sessionID)
	if err != nil {
		return nil, err
	}
	goal, err := s.goals.GetGoal(ctx, psychologistID, in.GoalID)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &NotFoundError{Resource: "goal"}
	}
	if goal.PatientID != session.PatientID {
		return nil, validation.ValidationError{Field: "goal_id", Message: "goal belongs to another patient"}
	}

	e := &models.ProgressEntry{
		SessionID:   sessionID,
		GoalID:      in.GoalID,
		Trials:      in.Trials,
		Correct:     in.Correct,
		PromptLevel: models.PromptLevel(in.PromptLevel),
		Notes:       in.Notes,
	}
	if err := s.progress.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListSessionProgress returns the trial blocks of one session
func (s *PatientService) ListSessionProgress(ctx context.Context, psychologistID string, sessionID int64) ([]models.ProgressEntry, error) {
	if _, err := s.GetSession(ctx, psychologistID, sessionID); err != nil {
		return nil, err
	}
	return s.progress.ListBySession(ctx, psychologistID, sessionID)
}

// Dashboard returns the practitioner's landing counts. Sessions are counted
// from the first day of now's month.
func (s *PatientService) Dashboard(ctx context.Context, psychologistID string, now time.Time) (*models.Dashboard, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	patients, err := s.patients.CountPatients(ctx, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("failed to count patients: %w", err)
	}
	sessions, err := s.sessions.CountSessionsSince(ctx, psychologistID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	goals, err := s.goals.CountActiveGoals(ctx, psychologistID)
	if err != nil {
		return nil, fmt.Errorf("failed to count goals: %w", err)
	}
	return &models.Dashboard{Patients: patients, SessionsThisMonth: sessions, ActiveGoals: goals}, nil
}
