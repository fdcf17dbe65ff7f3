package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/accreditation-api/oidc"
	"github.com/upb/accreditation-api/utils"
)

// AppInfo identifies the running build
type AppInfo struct {
	Version     string
	Environment string
}

// KeyStatus reports the signing key cache state
type KeyStatus interface {
	Stats() oidc.ResolverStats
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	OK          bool   `json:"ok"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Timestamp   string `json:"timestamp"`
	Uptime      int64  `json:"uptime"` // whole seconds
}

// ReadinessResponse represents the readiness response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	keys    KeyStatus
	info    AppInfo
	started time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and keys may be nil.
func NewHealthHandler(db *sql.DB, keys KeyStatus, info AppInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		keys:    keys,
		info:    info,
		started: time.Now(),
		now:     time.Now,
		logger:  logger,
	}
}

// HandleHealth handles GET /health
// Liveness only; always 200 while the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	response := HealthResponse{
		OK:          true,
		Version:     h.info.Version,
		Environment: h.info.Environment,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Uptime:      int64(now.Sub(h.started) / time.Second),
	}

	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /health/ready
// The database decides readiness. Key cache state is informational since keys load lazily.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.checkDatabase(ctx) != nil:
		checks["database"] = "unhealthy"
		ready = false
	default:
		checks["database"] = "healthy"
	}

	checks["signing_keys"] = h.keyState()

	timestamp := h.now().UTC().Format(time.RFC3339)

	var err error
	if ready {
		err = utils.WriteJSON(w, http.StatusOK, ReadinessResponse{
			Status:    "ready",
			Timestamp: timestamp,
			Checks:    checks,
		})
	} else {
		err = utils.WriteServiceUnavailable(w, "service not ready", map[string]interface{}{
			"status":    "unavailable",
			"timestamp": timestamp,
			"checks":    checks,
		})
	}
	if err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) keyState() string {
	if h.keys == nil {
		return "unknown"
	}
	stats := h.keys.Stats()
	switch {
	case stats.FetchedAt.IsZero():
		return "not_loaded"
	case stats.Fresh:
		return "fresh"
	default:
		return "stale"
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	return nil
}
