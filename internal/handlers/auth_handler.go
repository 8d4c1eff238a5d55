package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"abapractice/internal/models"
	"abapractice/internal/security"
	"abapractice/internal/service"
	"abapractice/internal/validation"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService          *service.AuthService
	csrf                 *security.CSRFGenerator
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	appBaseURL           string
	logger               *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, csrf *security.CSRFGenerator, oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL, appBaseURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		csrf:                 csrf,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		appBaseURL:           appBaseURL,
		logger:               logger,
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type resetPasswordRequest struct {
	Token string `json:"token"`
	passwordRequest
}

type sessionResponse struct {
	User      *models.User `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, session *models.LoginSession, user *models.User, status int) {
	token, err := h.csrf.GenerateToken(session.ID)
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, ErrInternalServerError, err)
		return
	}
	http.SetCookie(w, security.CreateSessionCookie(r, SessionCookieName, session.ID, session.ExpiresAt))
	respondJSON(w, status, sessionResponse{User: user, CSRFToken: token})
}

// SignUp registers a practitioner and signs them in
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	if _, err := h.authService.SignUp(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	session, user, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.startSession(w, r, session, user, http.StatusCreated)
}

// SignIn opens a cookie session
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	session, user, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.startSession(w, r, session, user, http.StatusOK)
}

// SignOut ends the current session
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := r.Context().Value(SessionIDContextKey).(string); ok {
		if err := h.authService.SignOut(r.Context(), sessionID); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, SessionCookieName))
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user and the CSRF token for the session
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := r.Context().Value(SessionIDContextKey).(string)
	token, err := h.csrf.GenerateToken(sessionID)
	if err != nil {
		respondWithError(w, h.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{User: GetUserFromContext(r.Context()), CSRFToken: token})
}

// ForgotPassword emails a reset link. The response does not reveal whether the address exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("password reset request failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword sets a new password using an emailed token
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword lets a practitioner replace their own password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, nil)
		return
	}
	if err := validation.ValidatePasswordConfirmation(req.Password, req.ConfirmPassword); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	if err := h.authService.UpdatePassword(r.Context(), user.ID, req.Password); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
