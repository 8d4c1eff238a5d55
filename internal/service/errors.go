package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrDraftUnavailable   = errors.New("note drafting is unavailable")
)

// ConflictError reports that a uniqueness rule rejected the operation
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// PersistenceError reports a failed collaborator call after validation passed
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that a referenced entity is absent or outside the caller's scope
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// SubscriptionRequiredError reports that the practitioner's plan does not allow access
type SubscriptionRequiredError struct {
	Status string
}

func (e *SubscriptionRequiredError) Error() string {
	if e.Status == "" {
		return "subscription required"
	}
	return "subscription " + e.Status
}
