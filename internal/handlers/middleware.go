package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"abapractice/internal/metrics"
	"abapractice/internal/models"
	"abapractice/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey      ContextKey = "user"
	SessionIDContextKey ContextKey = "session_id"
)

// SessionValidator resolves a cookie session to its user
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*models.User, error)
}

// SubscriptionChecker gates practitioner routes on the plan status
type SubscriptionChecker interface {
	Check(ctx context.Context, psychologistID string) error
}

// GuardianAccessLister lists a guardian's grants
type GuardianAccessLister interface {
	GuardianAccesses(ctx context.Context, guardianID string) ([]models.GuardianPatient, error)
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	sessions      SessionValidator
	subscriptions SubscriptionChecker
	guardians     GuardianAccessLister
	csrf          *security.CSRFGenerator
	limiter       *security.RateLimiter
	logger        *zap.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(sessions SessionValidator, subscriptions SubscriptionChecker, guardians GuardianAccessLister, csrf *security.CSRFGenerator, limiter *security.RateLimiter, logger *zap.Logger) *Middleware {
	return &Middleware{
		sessions:      sessions,
		subscriptions: subscriptions,
		guardians:     guardians,
		csrf:          csrf,
		limiter:       limiter,
		logger:        logger,
	}
}

// RequireAuth is middleware that requires a valid session
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}

		user, err := m.sessions.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			http.SetCookie(w, security.CreateDeleteCookie(r, SessionCookieName))
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, SessionIDContextKey, cookie.Value)
		next(w, r.WithContext(ctx))
	}
}

// RequireCapability rejects callers whose role does not grant c. It must run after RequireAuth.
func (m *Middleware) RequireCapability(c models.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user == nil {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}
		if !user.Profile.Role.Can(c) {
			respondWithError(w, m.logger, http.StatusForbidden, ErrForbidden, nil)
			return
		}
		next(w, r)
	}
}

// RequirePasswordChanged blocks guardians that still hold a temporary password
func (m *Middleware) RequirePasswordChanged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user == nil {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}
		if user.Profile.Role != models.RoleFamily {
			next(w, r)
			return
		}

		accesses, err := m.guardians.GuardianAccesses(r.Context(), user.ID)
		if err != nil {
			respondServiceError(w, m.logger, err)
			return
		}
		for _, a := range accesses {
			if a.Access.MustChangePassword {
				respondWithError(w, m.logger, http.StatusForbidden, "Password change required", nil)
				return
			}
		}
		next(w, r)
	}
}

// RequireSubscription lets practitioners through only while their plan allows it.
// Admins are never gated.
func (m *Middleware) RequireSubscription(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user == nil {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}
		if user.Profile.Role != models.RoleAdmin {
			if err := m.subscriptions.Check(r.Context(), user.ID); err != nil {
				respondServiceError(w, m.logger, err)
				return
			}
		}
		next(w, r)
	}
}

// CSRFProtect checks the CSRF header on mutating requests. It must run after RequireAuth.
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, r)
			return
		}

		sessionID, _ := r.Context().Value(SessionIDContextKey).(string)
		if !m.csrf.ValidateToken(sessionID, r.Header.Get(security.CSRFHeaderName)) {
			respondWithError(w, m.logger, http.StatusForbidden, "Invalid CSRF token", nil)
			return
		}
		next(w, r)
	}
}

// RateLimit throttles requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(m.limiter.ClientIP(r)) {
			respondWithError(w, m.logger, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next(w, r)
	}
}

// Practitioner is the chain for clinical routes: session, capability, paid plan, CSRF
func (m *Middleware) Practitioner(c models.Capability, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(m.RequireCapability(c, m.RequireSubscription(m.CSRFProtect(next))))
}

// Guardian is the chain for family portal routes
func (m *Middleware) Guardian(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(m.RequireCapability(models.CapViewFamilyPortal, m.RequirePasswordChanged(m.CSRFProtect(next))))
}

// Admin is the chain for the admin console
func (m *Middleware) Admin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(m.RequireCapability(models.CapManageSubscriptions, m.CSRFProtect(next)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging logs each request and records request metrics by route pattern
func Logging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, metrics.StatusClass(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		level := zapcore.InfoLevel
		switch {
		case rec.status >= 500:
			level = zapcore.ErrorLevel
		case rec.status >= 400:
			level = zapcore.WarnLevel
		}
		logger.Log(level, "http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", elapsed),
			zap.String("ip", security.GetClientIP(r, false)),
		)
	})
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
