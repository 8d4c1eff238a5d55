package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"abapractice/internal/service"
)

// SOAPHandler drafts session notes
type SOAPHandler struct {
	soap   *service.SOAPService
	logger *zap.Logger
}

// NewSOAPHandler creates a new SOAP handler
func NewSOAPHandler(soap *service.SOAPService, logger *zap.Logger) *SOAPHandler {
	return &SOAPHandler{soap: soap, logger: logger}
}

// Draft returns a SOAP note for the session. When the reply could not be
// split into sections the raw text is returned with a 502.
func (h *SOAPHandler) Draft(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidID, nil)
		return
	}
	var in service.DraftInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	note, err := h.soap.Draft(r.Context(), user.ID, id, in)
	if err != nil {
		if errors.Is(err, service.ErrDraftUnavailable) && note != nil {
			respondJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Raw: note.Raw})
			return
		}
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}
