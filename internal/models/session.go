package models

import "time"

// SessionType classifies a therapy session
type SessionType string

const (
	SessionIndividual     SessionType = "individual"
	SessionGroup          SessionType = "group"
	SessionParentTraining SessionType = "parent_training"
	SessionSupervision    SessionType = "supervision"
)

// Valid reports whether t is a known session type
func (t SessionType) Valid() bool {
	switch t {
	case SessionIndividual, SessionGroup, SessionParentTraining, SessionSupervision:
		return true
	}
	return false
}

// Session is one dated therapy session. SessionDate carries only the calendar day (UTC midnight).
type Session struct {
	ID              int64       `json:"id"`
	PatientID       int64       `json:"patient_id"`
	PsychologistID  string      `json:"psychologist_id"`
	SessionDate     time.Time   `json:"session_date"`
	DurationMinutes int         `json:"duration_minutes"`
	SessionType     SessionType `json:"session_type"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
}

// DateKey returns the session's calendar date as YYYY-MM-DD
func (s *Session) DateKey() string {
	return s.SessionDate.UTC().Format("2006-01-02")
}
