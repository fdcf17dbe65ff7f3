package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/accreditation-api/middleware"
	"github.com/upb/accreditation-api/utils"
)

// CurrentUserResponse is the public view of the authenticated user
type CurrentUserResponse struct {
	UserID            string   `json:"userId"`
	Email             string   `json:"email"`
	EmailVerified     bool     `json:"emailVerified"`
	Name              *string  `json:"name"`
	PreferredUsername *string  `json:"preferredUsername"`
	Roles             []string `json:"roles"`
}

// UserHandler serves identity endpoints. Routes must be protected.
type UserHandler struct {
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(logger *zap.Logger) *UserHandler {
	return &UserHandler{logger: logger}
}

// HandleMe handles GET /me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.MustClaims(r.Context())

	h.logger.Debug("current user requested",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("sub", claims.Subject))

	_ = utils.WriteJSON(w, http.StatusOK, CurrentUserResponse{
		UserID:            claims.UserID,
		Email:             claims.Email,
		EmailVerified:     claims.EmailVerified,
		Name:              claims.Name,
		PreferredUsername: claims.PreferredUsername,
		Roles:             claims.Roles,
	})
}

// HandleRoles handles GET /api/v1/roles
func (h *UserHandler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	claims := middleware.MustClaims(r.Context())
	_ = utils.WriteOK(w, map[string]interface{}{"roles": claims.Roles})
}
