package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/models"
	"abapractice/internal/service"
)

// PatientHandler serves a practitioner's clinical records
type PatientHandler struct {
	patients *service.PatientService
	logger   *zap.Logger
	now      func() time.Time
}

// NewPatientHandler creates a new patient handler
func NewPatientHandler(patients *service.PatientService, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, logger: logger, now: time.Now}
}

// Dashboard returns the practitioner's landing counts
func (h *PatientHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	dash, err := h.patients.Dashboard(r.Context(), user.ID, h.now())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

// ListPatients returns the practitioner's patients
func (h *PatientHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	patients, err := h.patients.ListPatients(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	respondJSON(w, http.StatusOK, patients)
}

// CreatePatient adds a patient
func (h *PatientHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var in service.PatientInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	patient, err := h.patients.CreatePatient(r.Context(), user.ID, in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, patient)
}

// GetPatient returns one patient
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	patient, err := h.patients.GetPatient(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, patient)
}

// UpdatePatient replaces the editable fields of a patient
func (h *PatientHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var in service.PatientInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	patient, err := h.patients.UpdatePatient(r.Context(), user.ID, id, in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, patient)
}

// DeletePatient removes a patient and everything recorded for them
func (h *PatientHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	if err := h.patients.DeletePatient(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGoals returns a patient's goals
func (h *PatientHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	goals, err := h.patients.ListGoals(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if goals == nil {
		goals = []models.Goal{}
	}
	respondJSON(w, http.StatusOK, goals)
}

// CreateGoal adds a goal to a patient
func (h *PatientHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var in service.GoalInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	goal, err := h.patients.CreateGoal(r.Context(), user.ID, id, in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, goal)
}

// UpdateGoalStatus moves a goal to another status
func (h *PatientHandler) UpdateGoalStatus(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var req struct {
		Status models.GoalStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	if err := h.patients.UpdateGoalStatus(r.Context(), user.ID, id, req.Status); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions returns a patient's sessions
func (h *PatientHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	sessions, err := h.patients.ListSessions(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// CreateSession records a session for a patient
func (h *PatientHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var in service.SessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	session, err := h.patients.CreateSession(r.Context(), user.ID, id, in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// GetSession returns one session with its trial blocks
func (h *PatientHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	session, err := h.patients.GetSession(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	entries, err := h.patients.ListSessionProgress(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []models.ProgressEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"progress": entries,
	})
}

// RecordProgress adds a trial block to a session
func (h *PatientHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var in service.ProgressInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	entry, err := h.patients.RecordProgress(r.Context(), user.ID, id, in)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}
