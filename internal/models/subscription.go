package models

import "time"

// SubscriptionStatus is the billing state of a practitioner
type SubscriptionStatus string

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Subscription is a practitioner's plan
type Subscription struct {
	ID               int64              `json:"id"`
	PsychologistID   string             `json:"psychologist_id"`
	Plan             string             `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// AllowsAccess reports whether practitioner routes are open under this subscription
func (s *Subscription) AllowsAccess() bool {
	return s != nil && (s.Status == SubscriptionTrial || s.Status == SubscriptionActive)
}

// Toggled returns the status an admin toggle moves to
func (s SubscriptionStatus) Toggled() SubscriptionStatus {
	if s == SubscriptionActive {
		return SubscriptionInactive
	}
	return SubscriptionActive
}

// SubscriptionWithOwner joins a subscription with its practitioner for the admin list
type SubscriptionWithOwner struct {
	Subscription
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
