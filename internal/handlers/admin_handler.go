package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/models"
	"abapractice/internal/service"
)

// maxBackupUpload caps the multipart backup upload
const maxBackupUpload = 32 << 20

// AdminHandler handles admin-specific routes
type AdminHandler struct {
	subscriptions *service.SubscriptionService
	backupService *service.BackupService
	logger        *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(subscriptions *service.SubscriptionService, backupService *service.BackupService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		subscriptions: subscriptions,
		backupService: backupService,
		logger:        logger,
	}
}

// ListSubscriptions returns every practitioner's subscription
func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []models.SubscriptionWithOwner{}
	}
	respondJSON(w, http.StatusOK, subs)
}

// ToggleSubscription flips a subscription between active and inactive
func (h *AdminHandler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	sub, err := h.subscriptions.Toggle(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("subscription toggled by admin",
		zap.String("admin", GetUserFromContext(r.Context()).Email),
		zap.Int64("subscription_id", id),
	)
	respondJSON(w, http.StatusOK, sub)
}

// ExportDatabase exports the clinical data to JSON for download
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	filename := fmt.Sprintf("abapractice_backup_%s.json", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := h.backupService.ExportToWriter(r.Context(), w); err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to export database", err)
		return
	}
	h.logger.Info("database exported", zap.String("admin", user.Email))
}

// ImportDatabase restores an uploaded backup. clear_data=true wipes the clinical tables first.
func (h *AdminHandler) ImportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxBackupUpload)
	if err := r.ParseMultipartForm(maxBackupUpload); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Failed to parse form", nil)
		return
	}

	file, _, err := r.FormFile("backup_file")
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Please select a backup file", nil)
		return
	}
	defer file.Close()

	clearData := r.FormValue("clear_data") == "true"
	if err := h.backupService.ImportFromReader(r.Context(), file, clearData); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Failed to import database", err)
		return
	}

	h.logger.Info("database imported", zap.String("admin", user.Email), zap.Bool("clear_data", clearData))
	w.WriteHeader(http.StatusNoContent)
}
