package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/database"
	"abapractice/internal/metrics"
	"abapractice/internal/models"
	"abapractice/internal/progress"
	"abapractice/internal/repository"
)

// PatientProgress is a report together with the patient it describes
type PatientProgress struct {
	Patient *models.Patient `json:"patient"`
	Report  progress.Report `json:"report"`
}

// ReportService loads scoped clinical data and runs the progress engine over it
type ReportService struct {
	patients *repository.PatientRepository
	goals    *repository.GoalRepository
	sessions *repository.SessionRepository
	entries  *repository.ProgressRepository
	family   *FamilyAccessService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService creates a new report service
func NewReportService(db *database.DB, family *FamilyAccessService, logger *zap.Logger) *ReportService {
	return &ReportService{
		patients: repository.NewPatientRepository(db),
		goals:    repository.NewGoalRepository(db),
		sessions: repository.NewSessionRepository(db),
		entries:  repository.NewProgressRepository(db),
		family:   family,
		logger:   logger,
		now:      time.Now,
	}
}

// PatientReport builds the progress report a practitioner sees for a patient
func (s *ReportService) PatientReport(ctx context.Context, psychologistID string, patientID int64, window string) (*PatientProgress, error) {
	w, err := progress.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	out, err := s.build(ctx, psychologistID, patientID, w)
	if err != nil {
		return nil, err
	}
	metrics.ReportBuilds.WithLabelValues("practitioner", w.String()).Inc()
	return out, nil
}

// GuardianReport builds the same report for a guardian with a grant on the
// patient, scoped to the practitioner who issued the grant.
func (s *ReportService) GuardianReport(ctx context.Context, guardianID string, patientID int64, window string) (*PatientProgress, error) {
	w, err := progress.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	access, err := s.family.ResolveGuardianAccess(ctx, guardianID, patientID)
	if err != nil {
		return nil, err
	}
	out, err := s.build(ctx, access.PsychologistID, patientID, w)
	if err != nil {
		return nil, err
	}
	if err := s.family.TouchAccess(ctx, guardianID, access.ID); err != nil {
		s.logger.Warn("failed to stamp family access", zap.Int64("access_id", access.ID), zap.Error(err))
	}
	metrics.ReportBuilds.WithLabelValues("family", w.String()).Inc()
	return out, nil
}

func (s *ReportService) build(ctx context.Context, psychologistID string, patientID int64, w progress.Window) (*PatientProgress, error) {
	patient, err := s.patients.GetPatient(ctx, psychologistID, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}

	now := s.now().UTC()
	var since *time.Time
	if t, ok := w.Since(now); ok {
		since = &t
	}

	goals, err := s.goals.ListGoals(ctx, psychologistID, patientID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListSessions(ctx, psychologistID, patientID, since)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListForPatient(ctx, psychologistID, patientID, since)
	if err != nil {
		return nil, err
	}

	report := progress.BuildReport(progress.ReportInput{
		PatientID: patientID,
		Window:    w,
		Now:       now,
		Goals:     goals,
		Sessions:  sessions,
		Entries:   entries,
	})
	return &PatientProgress{Patient: patient, Report: report}, nil
}
