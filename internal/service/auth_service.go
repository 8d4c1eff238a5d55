package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abapractice/internal/credentials"
	"abapractice/internal/database"
	"abapractice/internal/metrics"
	"abapractice/internal/models"
	"abapractice/internal/repository"
	"abapractice/internal/security"
	"abapractice/internal/validation"
)

const (
	// TrialPeriod is how long a new practitioner's trial subscription lasts
	TrialPeriod = 14 * 24 * time.Hour
	// ResetTokenTTL bounds the lifetime of an emailed password reset link
	ResetTokenTTL = time.Hour

	trialPlan = "trial"
)

// AuthService handles authentication business logic. It is also the identity
// collaborator used by the family access workflow.
type AuthService struct {
	db              *database.DB
	identities      *repository.IdentityRepository
	profiles        *repository.ProfileRepository
	emailService    *EmailService
	sessionDuration time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(db *database.DB, emailService *EmailService, sessionDuration time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:              db,
		identities:      repository.NewIdentityRepository(db),
		profiles:        repository.NewProfileRepository(db),
		emailService:    emailService,
		sessionDuration: sessionDuration,
		logger:          logger,
		now:             time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates a practitioner account with a trial subscription. The very
// first account of an installation becomes the platform admin.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*models.User, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(fullName); err != nil {
		return nil, err
	}

	existing, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing identity: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &models.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	user, err := s.createPractitioner(ctx, identity, fullName)
	if err != nil {
		return nil, err
	}

	if err := s.emailService.SendWelcomeEmail(ctx, user.Email, user.Profile.FullName); err != nil {
		s.logger.Warn("failed to send welcome email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// createPractitioner inserts identity, profile and trial subscription in one transaction
func (s *AuthService) createPractitioner(ctx context.Context, identity *models.Identity, fullName string) (*models.User, error) {
	user := &models.User{}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		identities := repository.NewIdentityRepository(tx)

		count, err := identities.CountIdentities(ctx)
		if err != nil {
			return err
		}
		role := models.RolePsychologist
		if count == 0 {
			role = models.RoleAdmin
		}

		if err := identities.CreateIdentity(ctx, identity); err != nil {
			return err
		}
		profile, err := repository.NewProfileRepository(tx).CreateProfile(ctx, identity.ID, fullName, role)
		if err != nil {
			return err
		}
		periodEnd := s.now().UTC().Add(TrialPeriod)
		if err := repository.NewSubscriptionRepository(tx).UpsertSubscription(ctx, identity.ID, trialPlan, models.SubscriptionTrial, &periodEnd); err != nil {
			return err
		}

		user.Identity = *identity
		user.Profile = *profile
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("role", string(user.Profile.Role)))
	return user, nil
}

// SignIn authenticates an email/password pair and opens a session
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.LoginSession, *models.User, error) {
	identity, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get identity: %w", err)
	}
	// OAuth-only identities have no password hash and cannot sign in this way
	if identity == nil || identity.PasswordHash == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if !security.CheckPassword(identity.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.GetUser(ctx, identity.ID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.openSession(ctx, identity.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *AuthService) openSession(ctx context.Context, identityID string) (*models.LoginSession, error) {
	session, err := s.identities.CreateSession(ctx, security.GenerateSessionID(), identityID, s.now().Add(s.sessionDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession resolves a session cookie value to its user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.identities.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.now().After(session.ExpiresAt) {
		if err := s.identities.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return nil, ErrSessionExpired
	}

	user, err := s.GetUser(ctx, session.IdentityID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// GetUser loads an identity with its profile. Returns nil when either is missing.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if identity == nil {
		return nil, nil
	}
	profile, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile == nil {
		return nil, nil
	}
	return &models.User{Identity: *identity, Profile: *profile}, nil
}

// SignOut ends a session
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	return s.identities.DeleteSession(ctx, sessionID)
}

// OAuthSignIn signs in with a verified provider account. An unknown account
// is linked to the practitioner with the same email, or creates a new one.
func (s *AuthService) OAuthSignIn(ctx context.Context, provider, subject, email, fullName string) (*models.LoginSession, *models.User, error) {
	if provider == "" || subject == "" {
		return nil, nil, errors.New("oauth provider and subject are required")
	}
	email = normalizeEmail(email)

	identity, err := s.identities.GetByOAuth(ctx, provider, subject)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get oauth identity: %w", err)
	}

	if identity == nil && email != "" {
		identity, err = s.identities.GetByEmail(ctx, email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get identity: %w", err)
		}
		if identity != nil {
			if err := s.identities.LinkOAuthProvider(ctx, identity.ID, provider, subject); err != nil {
				return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
			}
		}
	}

	var user *models.User
	if identity == nil {
		if err := validation.ValidateEmail(email); err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(fullName) == "" {
			fullName = strings.SplitN(email, "@", 2)[0]
		}
		user, err = s.createPractitioner(ctx, &models.Identity{
			ID:             uuid.NewString(),
			Email:          email,
			EmailConfirmed: true,
			OAuthProvider:  provider,
			OAuthSubject:   subject,
		}, strings.TrimSpace(fullName))
		if err != nil {
			return nil, nil, err
		}
	} else {
		user, err = s.GetUser(ctx, identity.ID)
		if err != nil {
			return nil, nil, err
		}
		if user == nil {
			return nil, nil, ErrInvalidCredentials
		}
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// RequestPasswordReset emails a one-hour reset link. Unknown addresses succeed
// silently so the endpoint does not reveal which emails are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	identity, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to get identity: %w", err)
	}
	if identity == nil {
		return nil
	}

	token, err := credentials.GenerateToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	if err := s.identities.CreateResetToken(ctx, token, identity.ID, s.now().Add(ResetTokenTTL)); err != nil {
		return err
	}

	name := identity.Email
	if profile, err := s.profiles.GetProfile(ctx, identity.ID); err == nil && profile != nil {
		name = profile.FullName
	}
	if err := s.emailService.SendPasswordResetEmail(ctx, identity.Email, name, token); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ValidatePasswordResetToken returns the token when it is unused and unexpired
func (s *AuthService) ValidatePasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	resetToken, err := s.identities.GetResetToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	if resetToken == nil || resetToken.Used || s.now().After(resetToken.ExpiresAt) {
		return nil, ErrInvalidResetToken
	}
	return resetToken, nil
}

// ResetPassword sets a new password through an emailed token
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if err := validation.ValidatePasswordConfirmation(newPassword, confirmPassword); err != nil {
		return err
	}
	resetToken, err := s.ValidatePasswordResetToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.UpdatePassword(ctx, resetToken.IdentityID, newPassword); err != nil {
		return err
	}
	return s.identities.MarkResetTokenUsed(ctx, token)
}

// UpdatePassword replaces an identity's password
func (s *AuthService) UpdatePassword(ctx context.Context, identityID, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}
	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.identities.UpdatePassword(ctx, identityID, passwordHash)
}

// AdminCreateUser creates an identity with a pre-confirmed email and the given
// metadata. It creates no profile. A taken email yields ErrEmailTaken.
func (s *AuthService) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error) {
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return "", err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return "", err
	}
	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &models.Identity{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   passwordHash,
		EmailConfirmed: true,
		Metadata:       metadata,
	}
	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return identity.ID, nil
}

// AdminDeleteUser removes an identity together with its sessions and tokens
func (s *AuthService) AdminDeleteUser(ctx context.Context, identityID string) error {
	return s.identities.DeleteIdentity(ctx, identityID)
}

// CleanupExpired removes expired sessions and reset tokens
func (s *AuthService) CleanupExpired(ctx context.Context) error {
	now := s.now()
	sessions, err := s.identities.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return err
	}
	tokens, err := s.identities.DeleteExpiredResetTokens(ctx, now)
	if err != nil {
		return err
	}
	metrics.CleanupRemoved.WithLabelValues("session").Add(float64(sessions))
	metrics.CleanupRemoved.WithLabelValues("reset_token").Add(float64(tokens))
	if sessions > 0 || tokens > 0 {
		s.logger.Info("expired auth records removed", zap.Int64("sessions", sessions), zap.Int64("reset_tokens", tokens))
	}
	return nil
}
