package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"abapractice/internal/service"
)

// ReportHandler serves progress reports to practitioners and guardians
type ReportHandler struct {
	reports *service.ReportService
	logger  *zap.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// PatientReport returns the report for one of the practitioner's patients.
// ?window= accepts 7d, 30d, 90d or all.
func (h *ReportHandler) PatientReport(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	out, err := h.reports.PatientReport(r.Context(), user.ID, id, r.URL.Query().Get("window"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// PatientReportCharts returns the report rendered as chart options
func (h *ReportHandler) PatientReportCharts(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	out, err := h.reports.PatientReport(r.Context(), user.ID, id, r.URL.Query().Get("window"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, buildReportCharts(out.Report))
}

// GuardianReport returns the report for a patient the guardian has access to
func (h *ReportHandler) GuardianReport(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	out, err := h.reports.GuardianReport(r.Context(), user.ID, id, r.URL.Query().Get("window"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GuardianReportCharts is GuardianReport rendered as chart options
func (h *ReportHandler) GuardianReportCharts(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}

	out, err := h.reports.GuardianReport(r.Context(), user.ID, id, r.URL.Query().Get("window"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, buildReportCharts(out.Report))
}
