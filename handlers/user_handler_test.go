package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/accreditation-api/middleware"
	"github.com/upb/accreditation-api/oidc"
)

func TestUserHandler_HandleMe(t *testing.T) {
	handler := NewUserHandler(zap.NewNop())

	t.Run("returns the authenticated user", func(t *testing.T) {
		name := "Ada Lovelace"
		claims := &oidc.UserClaims{
			UserID:        "user-123",
			Subject:       "user-123",
			Email:         "ada@example.com",
			EmailVerified: true,
			Name:          &name,
			Roles:         []string{"admin", "user"},
		}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"userId": "user-123",
			"email": "ada@example.com",
			"emailVerified": true,
			"name": "Ada Lovelace",
			"preferredUsername": null,
			"roles": ["admin", "user"]
		}`, w.Body.String())
	})

	t.Run("no claims in context", func(t *testing.T) {
		w := httptest.NewRecorder()
		assert.Panics(t, func() {
			handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		})
	})
}

func TestUserHandler_HandleRoles(t *testing.T) {
	handler := NewUserHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &oidc.UserClaims{UserID: "u", Roles: []string{}}))
	w := httptest.NewRecorder()

	handler.HandleRoles(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data": {"roles": []}}`, w.Body.String())

	assert.Panics(t, func() {
		handler.HandleRoles(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil))
	})
}

func TestStatusHandler(t *testing.T) {
	keys := stubKeyStatus{stats: oidc.ResolverStats{Endpoint: "https://sso.example.com/certs", KeyCount: 2, Fresh: true}}
	h := StatusHandler(testInfo, "https://sso.example.com", keys)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "1.2.3", body.Data.Version)
	assert.Equal(t, "https://sso.example.com", body.Data.Issuer)
	require.NotNil(t, body.Data.Keys)
	assert.Equal(t, 2, body.Data.Keys.Count)
	assert.True(t, body.Data.Keys.Fresh)
}
