package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"abapractice/internal/models"
	"abapractice/internal/service"
	"abapractice/internal/validation"
)

// FamilyHandler serves guardian grants to practitioners and the family portal to guardians
type FamilyHandler struct {
	family *service.FamilyAccessService
	logger *zap.Logger
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(family *service.FamilyAccessService, logger *zap.Logger) *FamilyHandler {
	return &FamilyHandler{family: family, logger: logger}
}

type createAccessRequest struct {
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type extendAccessRequest struct {
	AccessID int64 `json:"access_id"`
}

type guardianPasswordRequest struct {
	AccessID int64 `json:"access_id"`
	passwordRequest
}

// CreateAccess provisions a guardian account with access to the patient
func (h *FamilyHandler) CreateAccess(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	patientID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var req createAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	created, err := h.family.CreateAccess(r.Context(), service.CreateAccessParams{
		PatientID:      patientID,
		FamilyName:     req.FamilyName,
		Email:          req.Email,
		Password:       req.Password,
		PsychologistID: user.ID,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// ExtendAccess gives an existing guardian access to another patient
func (h *FamilyHandler) ExtendAccess(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	patientID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var req extendAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	created, err := h.family.ExtendAccess(r.Context(), user.ID, req.AccessID, patientID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// ListAccesses returns the grants on a patient
func (h *FamilyHandler) ListAccesses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	patientID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	accesses, err := h.family.ListAccesses(r.Context(), user.ID, patientID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if accesses == nil {
		accesses = []models.FamilyAccess{}
	}
	respondJSON(w, http.StatusOK, accesses)
}

// RevokeAccess deletes a grant
func (h *FamilyHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	accessID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	if err := h.family.RevokeAccess(r.Context(), user.ID, accessID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patients lists the patients the guardian can follow
func (h *FamilyHandler) Patients(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	patients, err := h.family.GuardianAccesses(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if patients == nil {
		patients = []models.GuardianPatient{}
	}
	respondJSON(w, http.StatusOK, patients)
}

// ChangePassword is the guardian's password change. Without an access_id the
// first grant still waiting for a new password is used.
func (h *FamilyHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var req guardianPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	if err := validation.ValidatePasswordConfirmation(req.Password, req.ConfirmPassword); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	accessID := req.AccessID
	if accessID == 0 {
		accesses, err := h.family.GuardianAccesses(r.Context(), user.ID)
		if err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
		for _, a := range accesses {
			if accessID == 0 || a.Access.MustChangePassword {
				accessID = a.Access.ID
			}
			if a.Access.MustChangePassword {
				break
			}
		}
	}

	if err := h.family.ChangeOwnPassword(r.Context(), user.ID, accessID, req.Password, req.ConfirmPassword); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
