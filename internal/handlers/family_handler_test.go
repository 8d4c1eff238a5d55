package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"abapractice/internal/models"
	"abapractice/internal/service"
)

func TestChangePasswordRejectsInvalidInputFirst(t *testing.T) {
	// every collaborator is nil, so any lookup before validation panics
	family := service.NewFamilyAccessService(nil, nil, nil, nil, nil, time.Second, zap.NewNop())
	h := NewFamilyHandler(family, zap.NewNop())

	tests := []struct {
		name string
		body string
	}{
		{"too short", `{"password":"abc","confirm_password":"abc"}`},
		{"mismatch", `{"password":"secret1","confirm_password":"secret2"}`},
		{"empty", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/family/password", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req = req.WithContext(context.WithValue(req.Context(), UserContextKey, userWithRole("guardian", models.RoleFamily)))
			rec := httptest.NewRecorder()

			assert.NotPanics(t, func() { h.ChangePassword(rec, req) })
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
