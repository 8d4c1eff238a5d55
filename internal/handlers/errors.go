package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"abapractice/internal/service"
	"abapractice/internal/validation"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, userMsg string, err error) {
	if err != nil {
		logger.Warn(userMsg, zap.Int("status", status), zap.Error(err))
	}
	respondJSON(w, status, errorBody{Error: userMsg})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var (
		validationErr   validation.ValidationError
		conflictErr     *service.ConflictError
		persistenceErr  *service.PersistenceError
		notFoundErr     *service.NotFoundError
		subscriptionErr *service.SubscriptionRequiredError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr), errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &subscriptionErr):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.As(err, &persistenceErr), errors.Is(err, service.ErrDraftUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondServiceError writes err with the status its type maps to.
// Unclassified errors are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var validationErr validation.ValidationError
	if errors.As(err, &validationErr) {
		body = errorBody{Error: validationErr.Message, Field: validationErr.Field}
	}

	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.Error(err))
		body = errorBody{Error: ErrInternalServerError}
	case http.StatusBadGateway:
		logger.Warn("collaborator failure", zap.Error(err))
	}
	respondJSON(w, status, body)
}

// decodeJSON reads a size-limited JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID parses a positive integer path value
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
