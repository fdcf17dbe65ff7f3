package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/upb/accreditation-api/oidc"
)

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetClaimsFromContext(ctx))

	claims := &oidc.UserClaims{UserID: "user-1"}
	ctx = WithClaims(ctx, claims)
	assert.Same(t, claims, GetClaimsFromContext(ctx))
	assert.Same(t, claims, MustClaims(ctx))
}

func TestMustClaims_PanicsWithoutGate(t *testing.T) {
	assert.Panics(t, func() { MustClaims(context.Background()) })
}

func TestMustClaims_UnguardedRouteRecovers(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Recoverer(zap.NewNop()))
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		_ = MustClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"Internal server error"}`, w.Body.String())
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Equal(t, "req-1", GetRequestIDFromContext(WithRequestID(ctx, "req-1")))
}
