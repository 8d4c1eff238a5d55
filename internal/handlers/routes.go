package handlers

import (
	"net/http"

	"abapractice/internal/models"
)

// Handlers groups every HTTP handler the server mounts
type Handlers struct {
	Auth    *AuthHandler
	Patient *PatientHandler
	Report  *ReportHandler
	Family  *FamilyHandler
	Admin   *AdminHandler
	SOAP    *SOAPHandler
	Health  *HealthHandler
}

// RegisterRoutes mounts the JSON API on mux
func RegisterRoutes(mux *http.ServeMux, m *Middleware, h Handlers) {
	mux.HandleFunc("GET /healthz", h.Health.Healthz)
	mux.HandleFunc("GET /readyz", h.Health.Readyz)

	// Auth
	mux.HandleFunc("POST /api/auth/signup", m.RateLimit(h.Auth.SignUp))
	mux.HandleFunc("POST /api/auth/signin", m.RateLimit(h.Auth.SignIn))
	mux.HandleFunc("POST /api/auth/signout", m.RequireAuth(m.CSRFProtect(h.Auth.SignOut)))
	mux.HandleFunc("GET /api/auth/me", m.RequireAuth(h.Auth.Me))
	mux.HandleFunc("POST /api/auth/forgot-password", m.RateLimit(h.Auth.ForgotPassword))
	mux.HandleFunc("POST /api/auth/reset-password", m.RateLimit(h.Auth.ResetPassword))
	mux.HandleFunc("POST /api/auth/password", m.RateLimit(m.Practitioner(models.CapManagePatients, h.Auth.ChangePassword)))
	mux.HandleFunc("GET /api/auth/providers", h.Auth.Providers)
	mux.HandleFunc("GET /auth/{provider}/start", h.Auth.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", h.Auth.OAuthCallback)

	// Practitioner records
	patients := func(next http.HandlerFunc) http.HandlerFunc {
		return m.Practitioner(models.CapManagePatients, next)
	}
	mux.HandleFunc("GET /api/dashboard", patients(h.Patient.Dashboard))
	mux.HandleFunc("GET /api/patients", patients(h.Patient.ListPatients))
	mux.HandleFunc("POST /api/patients", patients(h.Patient.CreatePatient))
	mux.HandleFunc("GET /api/patients/{id}", patients(h.Patient.GetPatient))
	mux.HandleFunc("PUT /api/patients/{id}", patients(h.Patient.UpdatePatient))
	mux.HandleFunc("DELETE /api/patients/{id}", patients(h.Patient.DeletePatient))
	mux.HandleFunc("GET /api/patients/{id}/goals", patients(h.Patient.ListGoals))
	mux.HandleFunc("POST /api/patients/{id}/goals", patients(h.Patient.CreateGoal))
	mux.HandleFunc("PATCH /api/goals/{id}", patients(h.Patient.UpdateGoalStatus))
	mux.HandleFunc("GET /api/patients/{id}/sessions", patients(h.Patient.ListSessions))
	mux.HandleFunc("POST /api/patients/{id}/sessions", patients(h.Patient.CreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", patients(h.Patient.GetSession))
	mux.HandleFunc("POST /api/sessions/{id}/progress", patients(h.Patient.RecordProgress))
	mux.HandleFunc("GET /api/patients/{id}/report", patients(h.Report.PatientReport))
	mux.HandleFunc("GET /api/patients/{id}/report/charts", patients(h.Report.PatientReportCharts))
	mux.HandleFunc("POST /api/sessions/{id}/soap-draft", m.Practitioner(models.CapDraftNotes, h.SOAP.Draft))

	// Guardian grants
	grants := func(next http.HandlerFunc) http.HandlerFunc {
		return m.Practitioner(models.CapManageFamilyAccess, next)
	}
	mux.HandleFunc("GET /api/patients/{id}/family-access", grants(h.Family.ListAccesses))
	mux.HandleFunc("POST /api/patients/{id}/family-access", grants(h.Family.CreateAccess))
	mux.HandleFunc("POST /api/patients/{id}/family-access/extend", grants(h.Family.ExtendAccess))
	mux.HandleFunc("DELETE /api/family-access/{id}", grants(h.Family.RevokeAccess))

	// Family portal. The password route stays open to guardians with a temporary password.
	mux.HandleFunc("POST /api/family/password", m.RateLimit(m.RequireAuth(m.RequireCapability(models.CapViewFamilyPortal, m.CSRFProtect(h.Family.ChangePassword)))))
	mux.HandleFunc("GET /api/family/patients", m.Guardian(h.Family.Patients))
	mux.HandleFunc("GET /api/family/patients/{id}/report", m.Guardian(h.Report.GuardianReport))
	mux.HandleFunc("GET /api/family/patients/{id}/report/charts", m.Guardian(h.Report.GuardianReportCharts))

	// Admin
	mux.HandleFunc("GET /api/admin/subscriptions", m.Admin(h.Admin.ListSubscriptions))
	mux.HandleFunc("POST /api/admin/subscriptions/{id}/toggle", m.Admin(h.Admin.ToggleSubscription))
	mux.HandleFunc("GET /api/admin/backup", m.Admin(h.Admin.ExportDatabase))
	mux.HandleFunc("POST /api/admin/backup", m.Admin(h.Admin.ImportDatabase))
}
