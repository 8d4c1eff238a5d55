package models

import "time"

// Identity is a sign-in account held by the identity store
type Identity struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	PasswordHash   string            `json:"-"`
	EmailConfirmed bool              `json:"email_confirmed"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OAuthProvider  string            `json:"oauth_provider,omitempty"`
	OAuthSubject   string            `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Profile is the application-side record for an identity
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User combines an identity with its profile
type User struct {
	Identity
	Profile Profile `json:"profile"`
}

// Principal returns the caller identity used for authorization
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Email: u.Email, Name: u.Profile.FullName, Role: u.Profile.Role}
}

// LoginSession represents an authenticated cookie session
type LoginSession struct {
	ID         string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// IsExpired checks if the session has expired
func (s *LoginSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// PasswordResetToken represents a token for password reset
type PasswordResetToken struct {
	Token      string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Used       bool
}

// IsExpired checks if the reset token has expired
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
