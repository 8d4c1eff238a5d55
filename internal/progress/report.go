package progress

import (
	"time"

	"abapractice/internal/models"
)

// Report bundles every view for one patient and window
type Report struct {
	PatientID       int64            `json:"patient_id"`
	Window          string           `json:"window"`
	Since           *time.Time       `json:"since,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Summary         SummaryStats     `json:"summary"`
	GoalCompletion  []GoalCompletion `json:"goal_completion"`
	DailyAverage    []DailyAverage   `json:"daily_average"`
	PromptHistogram []PromptCount    `json:"prompt_histogram"`
}

// ReportInput is the scoped data a report is computed from
type ReportInput struct {
	PatientID int64
	Window    Window
	Now       time.Time
	Goals     []models.Goal
	Sessions  []models.Session
	Entries   []models.ProgressEntry
	Labels    map[models.PromptLevel]string
}

// BuildReport computes every view from already-scoped input
func BuildReport(in ReportInput) Report {
	labels := in.Labels
	if labels == nil {
		labels = DefaultPromptLabels
	}
	dates := DatesFromSessions(in.Sessions)

	r := Report{
		PatientID:       in.PatientID,
		Window:          in.Window.String(),
		GeneratedAt:     in.Now,
		Summary:         ComputeSummaryStats(in.Sessions, in.Entries, in.Goals, dates),
		GoalCompletion:  ComputeGoalCompletion(in.Goals, in.Entries, dates),
		DailyAverage:    ComputeDailyAverage(in.Entries, dates),
		PromptHistogram: ComputePromptHistogram(in.Entries, labels),
	}
	if since, ok := in.Window.Since(in.Now); ok {
		r.Since = &since
	}
	return r
}
