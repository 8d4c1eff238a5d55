package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"abapractice/internal/database"
	"abapractice/internal/repository"
	"abapractice/internal/security"
	"abapractice/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db, err := database.Initialize(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	email, err := service.NewEmailService(context.Background(), "", "", "", "http://localhost:8080", logger)
	require.NoError(t, err)

	auth := service.NewAuthService(db, email, time.Hour, logger)
	family := service.NewFamilyAccessService(
		auth,
		repository.NewProfileRepository(db),
		repository.NewFamilyAccessRepository(db),
		repository.NewPatientRepository(db),
		email,
		5*time.Second,
		logger,
	)
	subscriptions := service.NewSubscriptionService(db, logger)
	csrf := security.NewCSRFGenerator("api-test")

	startup := NewStartupStatus("database")
	startup.CompleteStep("database")
	startup.MarkReady()

	m := NewMiddleware(auth, subscriptions, family, csrf, security.NewRateLimiter(100, time.Minute), logger)
	mux := http.NewServeMux()
	RegisterRoutes(mux, m, Handlers{
		Auth:    NewAuthHandler(auth, csrf, nil, "http://localhost:8080", "http://localhost:3000", logger),
		Patient: NewPatientHandler(service.NewPatientService(db, logger), logger),
		Report:  NewReportHandler(service.NewReportService(db, family, logger), logger),
		Family:  NewFamilyHandler(family, logger),
		Admin:   NewAdminHandler(subscriptions, service.NewBackupService(db, logger), logger),
		SOAP:    NewSOAPHandler(service.NewSOAPService(db, nil, time.Second, logger), logger),
		Health:  NewHealthHandler(db, startup),
	})

	srv := httptest.NewServer(Logging(logger, mux))
	t.Cleanup(srv.Close)
	return srv
}

func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// apiClient carries one signed-in session
type apiClient struct {
	t       *testing.T
	baseURL string
	session string
	csrf    string
}

func (c *apiClient) do(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.session})
	}
	if c.csrf != "" {
		req.Header.Set(security.CSRFHeaderName, c.csrf)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			c.session = cookie.Value
		}
	}
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *apiClient) signIn(path string, body any, want int) {
	c.t.Helper()
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.Equal(c.t, want, c.do(http.MethodPost, path, body, &resp))
	require.NotEmpty(c.t, resp.CSRFToken)
	c.csrf = resp.CSRFToken
}

func TestAPIFamilyAccessFlow(t *testing.T) {
	srv := newTestServer(t)

	admin := &apiClient{t: t, baseURL: srv.URL}
	admin.signIn("/api/auth/signup", map[string]string{"email": "admin@example.com", "password": "secret1", "full_name": "Admin"}, http.StatusCreated)

	psy := &apiClient{t: t, baseURL: srv.URL}
	psy.signIn("/api/auth/signup", map[string]string{"email": "psy@example.com", "password": "secret1", "full_name": "Dra. Paula"}, http.StatusCreated)

	var patient struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	require.Equal(t, http.StatusCreated, psy.do(http.MethodPost, "/api/patients", map[string]any{
		"name":      "Lucas",
		"diagnoses": []string{"TEA nível 1"},
	}, &patient))
	require.NotZero(t, patient.ID)

	var goal struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, psy.do(http.MethodPost, pathf("/api/patients/%d/goals", patient.ID), map[string]any{
		"name": "Contato visual", "category": "social", "target_percentage": 80,
	}, &goal))

	var session struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, psy.do(http.MethodPost, pathf("/api/patients/%d/sessions", patient.ID), map[string]any{
		"session_date": time.Now().UTC().Format("2006-01-02"), "duration_minutes": 60, "session_type": "individual",
	}, &session))
	require.Equal(t, http.StatusCreated, psy.do(http.MethodPost, pathf("/api/sessions/%d/progress", session.ID), map[string]any{
		"goal_id": goal.ID, "trials": 10, "correct": 9, "prompt_level": "independent",
	}, nil))

	// without the CSRF header the write is refused
	noToken := &apiClient{t: t, baseURL: srv.URL, session: psy.session}
	assert.Equal(t, http.StatusForbidden, noToken.do(http.MethodPost, "/api/patients", map[string]any{"name": "X"}, nil))

	var created service.CreatedAccess
	require.Equal(t, http.StatusCreated, psy.do(http.MethodPost, pathf("/api/patients/%d/family-access", patient.ID), map[string]string{
		"family_name": "Ana", "email": "ana@example.com", "password": "temp123",
	}, &created))
	require.NotZero(t, created.AccessID)

	assert.Equal(t, http.StatusConflict, psy.do(http.MethodPost, pathf("/api/patients/%d/family-access", patient.ID), map[string]string{
		"family_name": "Ana", "email": "ana@example.com", "password": "temp123",
	}, nil))

	guardian := &apiClient{t: t, baseURL: srv.URL}
	guardian.signIn("/api/auth/signin", map[string]string{"email": "ana@example.com", "password": "temp123"}, http.StatusOK)

	reportPath := pathf("/api/family/patients/%d/report", patient.ID)
	assert.Equal(t, http.StatusForbidden, guardian.do(http.MethodGet, reportPath, nil, nil))
	assert.Equal(t, http.StatusForbidden, guardian.do(http.MethodGet, "/api/patients", nil, nil))

	assert.Equal(t, http.StatusBadRequest, guardian.do(http.MethodPost, "/api/family/password", map[string]string{
		"password": "newpass1", "confirm_password": "different",
	}, nil))
	require.Equal(t, http.StatusNoContent, guardian.do(http.MethodPost, "/api/family/password", map[string]string{
		"password": "newpass1", "confirm_password": "newpass1",
	}, nil))

	var report struct {
		Patient struct {
			Name string `json:"name"`
		} `json:"patient"`
		Report struct {
			Summary struct {
				TotalSessions int `json:"total_sessions"`
			} `json:"summary"`
		} `json:"report"`
	}
	require.Equal(t, http.StatusOK, guardian.do(http.MethodGet, reportPath, nil, &report))
	assert.Equal(t, "Lucas", report.Patient.Name)
	assert.Equal(t, 1, report.Report.Summary.TotalSessions)

	var charts map[string]any
	require.Equal(t, http.StatusOK, guardian.do(http.MethodGet, reportPath+"/charts", nil, &charts))
	assert.Contains(t, charts, "daily_average")

	// the patient belongs to psy, not to admin
	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodGet, pathf("/api/patients/%d", patient.ID), nil, nil))

	require.Equal(t, http.StatusNoContent, psy.do(http.MethodDelete, pathf("/api/family-access/%d", created.AccessID), nil, nil))
	assert.Equal(t, http.StatusUnauthorized, guardian.do(http.MethodGet, reportPath, nil, nil))
}

func TestAPISubscriptionGate(t *testing.T) {
	srv := newTestServer(t)

	admin := &apiClient{t: t, baseURL: srv.URL}
	admin.signIn("/api/auth/signup", map[string]string{"email": "admin@example.com", "password": "secret1", "full_name": "Admin"}, http.StatusCreated)
	psy := &apiClient{t: t, baseURL: srv.URL}
	psy.signIn("/api/auth/signup", map[string]string{"email": "psy@example.com", "password": "secret1", "full_name": "Paula"}, http.StatusCreated)

	assert.Equal(t, http.StatusForbidden, psy.do(http.MethodGet, "/api/admin/subscriptions", nil, nil))

	var subs []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Email  string `json:"email"`
	}
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/api/admin/subscriptions", nil, &subs))

	var trialID int64
	for _, s := range subs {
		if s.Email == "psy@example.com" {
			assert.Equal(t, "trial", s.Status)
			trialID = s.ID
		}
	}
	require.NotZero(t, trialID)

	// trial becomes active, then inactive
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, pathf("/api/admin/subscriptions/%d/toggle", trialID), nil, nil))
	assert.Equal(t, http.StatusOK, psy.do(http.MethodGet, "/api/dashboard", nil, nil))
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, pathf("/api/admin/subscriptions/%d/toggle", trialID), nil, nil))
	assert.Equal(t, http.StatusPaymentRequired, psy.do(http.MethodGet, "/api/dashboard", nil, nil))
}

func TestAPIProbes(t *testing.T) {
	srv := newTestServer(t)
	anon := &apiClient{t: t, baseURL: srv.URL}

	assert.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/healthz", nil, nil))
	assert.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/readyz", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/patients", nil, nil))
}
