package models

import "time"

// FamilyAccess grants one guardian read access to one patient's progress
type FamilyAccess struct {
	ID                 int64      `json:"id"`
	UserID             string     `json:"user_id"`
	PatientID          int64      `json:"patient_id"`
	PsychologistID     string     `json:"psychologist_id"`
	FamilyName         string     `json:"family_name"`
	FamilyEmail        string     `json:"family_email"`
	MustChangePassword bool       `json:"must_change_password"`
	AccessLevel        string     `json:"access_level"`
	CreatedAt          time.Time  `json:"created_at"`
	LastAccessAt       *time.Time `json:"last_access_at,omitempty"`
}

// AccessLevelView is the only access level currently granted
const AccessLevelView = "view"

// FamilyAccessState is the lifecycle state of a guardian grant
type FamilyAccessState string

const (
	AccessPendingFirstLogin FamilyAccessState = "pending_first_login"
	AccessActive            FamilyAccessState = "active"
)

// State derives the lifecycle state from the row
func (a *FamilyAccess) State() FamilyAccessState {
	if a.MustChangePassword {
		return AccessPendingFirstLogin
	}
	return AccessActive
}

// GuardianPatient is a family access row joined with the patient name for the portal
type GuardianPatient struct {
	Access      FamilyAccess `json:"access"`
	PatientName string       `json:"patient_name"`
}
