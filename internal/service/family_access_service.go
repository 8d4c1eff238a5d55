package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/metrics"
	"abapractice/internal/models"
	"abapractice/internal/repository"
	"abapractice/internal/saga"
	"abapractice/internal/validation"
)

// DefaultCallTimeout bounds every collaborator call when no timeout is configured
const DefaultCallTimeout = 10 * time.Second

// IdentityProvider is the privileged side of the identity store
type IdentityProvider interface {
	AdminCreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error)
	AdminDeleteUser(ctx context.Context, identityID string) error
	UpdatePassword(ctx context.Context, identityID, newPassword string) error
}

// ProfileStore persists application profiles
type ProfileStore interface {
	CreateProfile(ctx context.Context, id, fullName string, role models.Role) (*models.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// FamilyAccessStore persists guardian grants
type FamilyAccessStore interface {
	CreateAccess(ctx context.Context, a *models.FamilyAccess) error
	GetAccess(ctx context.Context, psychologistID string, id int64) (*models.FamilyAccess, error)
	GetAccessForGuardian(ctx context.Context, userID string, id int64) (*models.FamilyAccess, error)
	GetAccessByPatient(ctx context.Context, userID string, patientID int64) (*models.FamilyAccess, error)
	DeleteAccess(ctx context.Context, psychologistID string, id int64) error
	RestoreAccess(ctx context.Context, a *models.FamilyAccess) error
	CountForGuardian(ctx context.Context, userID string) (int, error)
	ListByPatient(ctx context.Context, psychologistID string, patientID int64) ([]models.FamilyAccess, error)
	ListForGuardian(ctx context.Context, userID string) ([]models.GuardianPatient, error)
	CompletePasswordChange(ctx context.Context, userID string, id int64, now time.Time) (bool, error)
	TouchLastAccess(ctx context.Context, userID string, id int64, now time.Time) error
}

// PatientLookup resolves a patient inside a practitioner's scope
type PatientLookup interface {
	GetPatient(ctx context.Context, psychologistID string, id int64) (*models.Patient, error)
}

// InvitationSender delivers the portal invitation to a new guardian
type InvitationSender interface {
	SendFamilyInvitation(ctx context.Context, toEmail, familyName, patientName, temporaryPassword string) error
}

// FamilyAccessService provisions and revokes guardian access to the family portal
type FamilyAccessService struct {
	identities  IdentityProvider
	profiles    ProfileStore
	accesses    FamilyAccessStore
	patients    PatientLookup
	invitations InvitationSender
	callTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewFamilyAccessService creates the service. invitations may be nil.
func NewFamilyAccessService(identities IdentityProvider, profiles ProfileStore, accesses FamilyAccessStore, patients PatientLookup, invitations InvitationSender, callTimeout time.Duration, logger *zap.Logger) *FamilyAccessService {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FamilyAccessService{
		identities:  identities,
		profiles:    profiles,
		accesses:    accesses,
		patients:    patients,
		invitations: invitations,
		callTimeout: callTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// call runs one collaborator call under the per-call timeout
func (s *FamilyAccessService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(ctx)
}

// CreateAccessParams are the inputs of CreateAccess
type CreateAccessParams struct {
	PatientID      int64
	FamilyName     string
	Email          string
	Password       string
	PsychologistID string
}

// CreatedAccess is the result of a successful CreateAccess
type CreatedAccess struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	AccessID int64  `json:"access_id"`
}

func (p CreateAccessParams) validate() error {
	if p.PatientID <= 0 {
		return validation.ValidationError{Field: "patient_id", Message: "patient is required"}
	}
	if strings.TrimSpace(p.PsychologistID) == "" {
		return validation.ValidationError{Field: "psychologist_id", Message: "practitioner is required"}
	}
	if err := validation.ValidateEmail(p.Email); err != nil {
		return err
	}
	return validation.ValidatePassword(p.Password)
}

// CreateAccess provisions a guardian identity, its profile and its grant on
// one patient. Each step after the identity is undone if a later one fails.
func (s *FamilyAccessService) CreateAccess(ctx context.Context, p CreateAccessParams) (*CreatedAccess, error) {
	p.Email = normalizeEmail(p.Email)
	p.FamilyName = strings.TrimSpace(p.FamilyName)
	if err := p.validate(); err != nil {
		return nil, err
	}

	var patient *models.Patient
	err := s.call(ctx, func(ctx context.Context) (err error) {
		patient, err = s.patients.GetPatient(ctx, p.PsychologistID, p.PatientID)
		return err
	})
	if err != nil {
		return nil, &PersistenceError{Op: "lookup_patient", Err: err}
	}
	if patient == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}
	if p.FamilyName == "" {
		p.FamilyName = patient.GuardianName
	}
	if p.FamilyName == "" {
		p.FamilyName = p.Email
	}

	var (
		userID string
		access *models.FamilyAccess
	)
	run := saga.New("create_family_access", s.logger).
		Add(saga.Step{
			Name: "create_identity",
			Action: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) (err error) {
					userID, err = s.identities.AdminCreateUser(ctx, p.Email, p.Password, map[string]string{
						"role": string(models.RoleFamily),
						"name": p.FamilyName,
					})
					return err
				})
			},
			Compensate: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) error {
					return s.identities.AdminDeleteUser(ctx, userID)
				})
			},
		}).
		Add(saga.Step{
			Name: "create_profile",
			Action: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) error {
					_, err := s.profiles.CreateProfile(ctx, userID, p.FamilyName, models.RoleFamily)
					return err
				})
			},
			Compensate: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) error {
					return s.profiles.DeleteProfile(ctx, userID)
				})
			},
		}).
		Add(saga.Step{
			Name: "create_access",
			Action: func(ctx context.Context) error {
				a := &models.FamilyAccess{
					UserID:             userID,
					PatientID:          p.PatientID,
					PsychologistID:     p.PsychologistID,
					FamilyName:         p.FamilyName,
					FamilyEmail:        p.Email,
					MustChangePassword: true,
					AccessLevel:        models.AccessLevelView,
				}
				if err := s.call(ctx, func(ctx context.Context) error {
					return s.accesses.CreateAccess(ctx, a)
				}); err != nil {
					return err
				}
				access = a
				return nil
			},
		})

	if err := run.Run(ctx); err != nil {
		stepErr, _ := saga.IsStepError(err)
		switch {
		case stepErr != nil && stepErr.Step == "create_identity" && errors.Is(err, ErrEmailTaken):
			metrics.FamilyAccessOps.WithLabelValues("create", "conflict").Inc()
			return nil, &ConflictError{Resource: "identity", Message: "email already registered"}
		case stepErr != nil && stepErr.Step == "create_identity":
			var verr validation.ValidationError
			if errors.As(err, &verr) {
				return nil, verr
			}
		}
		metrics.FamilyAccessOps.WithLabelValues("create", "error").Inc()
		op := "create_family_access"
		if stepErr != nil {
			op = stepErr.Step
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}

	metrics.FamilyAccessOps.WithLabelValues("create", "ok").Inc()
	s.logger.Info("family access created",
		zap.Int64("access_id", access.ID),
		zap.Int64("patient_id", p.PatientID),
		zap.String("user_id", userID),
	)

	if s.invitations != nil {
		if err := s.invitations.SendFamilyInvitation(ctx, p.Email, p.FamilyName, patient.Name, p.Password); err != nil {
			s.logger.Warn("failed to send family invitation", zap.Int64("access_id", access.ID), zap.Error(err))
		}
	}

	return &CreatedAccess{UserID: userID, Email: p.Email, AccessID: access.ID}, nil
}

// ExtendAccess grants an existing guardian access to another patient of the
// same practitioner. The new grant inherits the pending first-login flag.
func (s *FamilyAccessService) ExtendAccess(ctx context.Context, psychologistID string, existingAccessID, patientID int64) (*CreatedAccess, error) {
	if existingAccessID <= 0 {
		return nil, validation.ValidationError{Field: "access_id", Message: "access is required"}
	}
	if patientID <= 0 {
		return nil, validation.ValidationError{Field: "patient_id", Message: "patient is required"}
	}

	var (
		existing *models.FamilyAccess
		patient  *models.Patient
	)
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		existing, err = s.accesses.GetAccess(ctx, psychologistID, existingAccessID)
		return err
	}); err != nil {
		return nil, &PersistenceError{Op: "lookup_access", Err: err}
	}
	if existing == nil {
		return nil, &NotFoundError{Resource: "family access"}
	}
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		patient, err = s.patients.GetPatient(ctx, psychologistID, patientID)
		return err
	}); err != nil {
		return nil, &PersistenceError{Op: "lookup_patient", Err: err}
	}
	if patient == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}

	a := &models.FamilyAccess{
		UserID:             existing.UserID,
		PatientID:          patientID,
		PsychologistID:     psychologistID,
		FamilyName:         existing.FamilyName,
		FamilyEmail:        existing.FamilyEmail,
		MustChangePassword: existing.MustChangePassword,
		AccessLevel:        models.AccessLevelView,
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.accesses.CreateAccess(ctx, a)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		metrics.FamilyAccessOps.WithLabelValues("extend", "conflict").Inc()
		return nil, &ConflictError{Resource: "family access", Message: "guardian already has access to this patient"}
	}
	if err != nil {
		metrics.FamilyAccessOps.WithLabelValues("extend", "error").Inc()
		return nil, &PersistenceError{Op: "create_access", Err: err}
	}

	metrics.FamilyAccessOps.WithLabelValues("extend", "ok").Inc()
	return &CreatedAccess{UserID: a.UserID, Email: a.FamilyEmail, AccessID: a.ID}, nil
}

// RevokeAccess deletes a grant. When it was the guardian's last grant the
// guardian profile and identity are deleted too. A failure after the grant
// row is gone puts the row and profile back, so the revoke can be retried.
// Revoking an absent grant succeeds.
func (s *FamilyAccessService) RevokeAccess(ctx context.Context, psychologistID string, accessID int64) error {
	if accessID <= 0 {
		return validation.ValidationError{Field: "access_id", Message: "access is required"}
	}

	var access *models.FamilyAccess
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		access, err = s.accesses.GetAccess(ctx, psychologistID, accessID)
		return err
	}); err != nil {
		return s.revokeFailed("lookup_access", err)
	}
	if access == nil {
		metrics.FamilyAccessOps.WithLabelValues("revoke", "absent").Inc()
		return nil
	}

	var (
		remaining      int
		profileDeleted bool
	)
	run := saga.New("revoke_family_access", s.logger).
		Add(saga.Step{
			Name: "delete_access",
			Action: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) error {
					return s.accesses.DeleteAccess(ctx, psychologistID, accessID)
				})
			},
			Compensate: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) error {
					return s.accesses.RestoreAccess(ctx, access)
				})
			},
		}).
		Add(saga.Step{
			Name: "count_remaining",
			Action: func(ctx context.Context) error {
				return s.call(ctx, func(ctx context.Context) (err error) {
					remaining, err = s.accesses.CountForGuardian(ctx, access.UserID)
					return err
				})
			},
		}).
		Add(saga.Step{
			Name: "delete_profile",
			Action: func(ctx context.Context) error {
				if remaining > 0 {
					return nil
				}
				if err := s.call(ctx, func(ctx context.Context) error {
					return s.profiles.DeleteProfile(ctx, access.UserID)
				}); err != nil {
					return err
				}
				profileDeleted = true
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if !profileDeleted {
					return nil
				}
				return s.call(ctx, func(ctx context.Context) error {
					_, err := s.profiles.CreateProfile(ctx, access.UserID, access.FamilyName, models.RoleFamily)
					return err
				})
			},
		}).
		Add(saga.Step{
			Name: "delete_identity",
			Action: func(ctx context.Context) error {
				if remaining > 0 {
					return nil
				}
				return s.call(ctx, func(ctx context.Context) error {
					return s.identities.AdminDeleteUser(ctx, access.UserID)
				})
			},
		})

	if err := run.Run(ctx); err != nil {
		op := "revoke_family_access"
		if stepErr, ok := saga.IsStepError(err); ok {
			op = stepErr.Step
		}
		return s.revokeFailed(op, err)
	}

	metrics.FamilyAccessOps.WithLabelValues("revoke", "ok").Inc()
	s.logger.Info("family access revoked",
		zap.Int64("access_id", accessID),
		zap.String("user_id", access.UserID),
		zap.Bool("identity_deleted", remaining == 0),
	)
	return nil
}

func (s *FamilyAccessService) revokeFailed(op string, err error) error {
	metrics.FamilyAccessOps.WithLabelValues("revoke", "error").Inc()
	return &PersistenceError{Op: op, Err: err}
}

// ChangeOwnPassword is the guardian's first-login password change. The grant
// is only updated after the identity store accepted the new password.
func (s *FamilyAccessService) ChangeOwnPassword(ctx context.Context, guardianID string, accessID int64, newPassword, confirmPassword string) error {
	if err := validation.ValidatePasswordConfirmation(newPassword, confirmPassword); err != nil {
		return err
	}
	if accessID <= 0 {
		return validation.ValidationError{Field: "access_id", Message: "access is required"}
	}

	var access *models.FamilyAccess
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		access, err = s.accesses.GetAccessForGuardian(ctx, guardianID, accessID)
		return err
	}); err != nil {
		return &PersistenceError{Op: "lookup_access", Err: err}
	}
	if access == nil {
		return &NotFoundError{Resource: "family access"}
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.identities.UpdatePassword(ctx, guardianID, newPassword)
	}); err != nil {
		metrics.FamilyAccessOps.WithLabelValues("change_password", "error").Inc()
		return &PersistenceError{Op: "update_password", Err: err}
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		_, err := s.accesses.CompletePasswordChange(ctx, guardianID, accessID, s.now())
		return err
	}); err != nil {
		metrics.FamilyAccessOps.WithLabelValues("change_password", "error").Inc()
		return &PersistenceError{Op: "complete_password_change", Err: err}
	}

	metrics.FamilyAccessOps.WithLabelValues("change_password", "ok").Inc()
	return nil
}

// ListAccesses returns a patient's grants, newest first
func (s *FamilyAccessService) ListAccesses(ctx context.Context, psychologistID string, patientID int64) ([]models.FamilyAccess, error) {
	if patientID <= 0 {
		return nil, validation.ValidationError{Field: "patient_id", Message: "patient is required"}
	}
	var out []models.FamilyAccess
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		out, err = s.accesses.ListByPatient(ctx, psychologistID, patientID)
		return err
	}); err != nil {
		return nil, &PersistenceError{Op: "list_access", Err: err}
	}
	return out, nil
}

// GuardianAccesses lists the patients a guardian can see
func (s *FamilyAccessService) GuardianAccesses(ctx context.Context, guardianID string) ([]models.GuardianPatient, error) {
	var out []models.GuardianPatient
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		out, err = s.accesses.ListForGuardian(ctx, guardianID)
		return err
	}); err != nil {
		return nil, &PersistenceError{Op: "list_guardian_access", Err: err}
	}
	return out, nil
}

// ResolveGuardianAccess returns the guardian's grant on a patient, or NotFoundError
func (s *FamilyAccessService) ResolveGuardianAccess(ctx context.Context, guardianID string, patientID int64) (*models.FamilyAccess, error) {
	var access *models.FamilyAccess
	if err := s.call(ctx, func(ctx context.Context) (err error) {
		access, err = s.accesses.GetAccessByPatient(ctx, guardianID, patientID)
		return err
	}); err != nil {
		return nil, &PersistenceError{Op: "lookup_access", Err: err}
	}
	if access == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}
	return access, nil
}

// TouchAccess stamps last_access_at on a guardian's grant
func (s *FamilyAccessService) TouchAccess(ctx context.Context, guardianID string, accessID int64) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.accesses.TouchLastAccess(ctx, guardianID, accessID, s.now())
	})
}
