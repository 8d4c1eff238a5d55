package models

import "time"

// Patient is a client of a practitioner
type Patient struct {
	ID             int64      `json:"id"`
	PsychologistID string     `json:"psychologist_id"`
	Name           string     `json:"name"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Diagnoses      []string   `json:"diagnoses"`
	GuardianName   string     `json:"guardian_name"`
	Notes          string     `json:"notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GoalStatus is the lifecycle state of a therapy goal
type GoalStatus string

const (
	GoalActive   GoalStatus = "active"
	GoalPaused   GoalStatus = "paused"
	GoalAchieved GoalStatus = "achieved"
)

// Valid reports whether s is a known goal status
func (s GoalStatus) Valid() bool {
	return s == GoalActive || s == GoalPaused || s == GoalAchieved
}

// Goal is a measurable therapy target for one patient
type Goal struct {
	ID               int64      `json:"id"`
	PatientID        int64      `json:"patient_id"`
	PsychologistID   string     `json:"psychologist_id"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	TargetPercentage float64    `json:"target_percentage"`
	Status           GoalStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Dashboard holds the practitioner landing counts
type Dashboard struct {
	Patients          int `json:"patients"`
	SessionsThisMonth int `json:"sessions_this_month"`
	ActiveGoals       int `json:"active_goals"`
}
