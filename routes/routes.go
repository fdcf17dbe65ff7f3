package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/accreditation-api/app"
	"github.com/upb/accreditation-api/handlers"
	"github.com/upb/accreditation-api/middleware"
	"github.com/upb/accreditation-api/utils"
)

const requestTimeout = 60 * time.Second

// route is a single registered handler. Its method and pattern are what the
// access policy table is consulted with.
type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// DeclarePolicies marks the route table. Groups default to the closest
// marking; a route marking overrides its group.
func DeclarePolicies(p *middleware.AccessPolicies) {
	p.MarkGroup("/health", middleware.Public).
		MarkGroup("/api/v1", middleware.Protected).
		MarkRoute(http.MethodGet, "/api/v1/status", middleware.Public)
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	auth := deps.AuthMiddleware

	if policies := auth.Policies(); policies != nil {
		DeclarePolicies(policies)
	}

	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, cfg.Observability.EnableRequestLogging))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(chimiddleware.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(corsOptions(cfg.IsDevelopment(), cfg.CORS.AllowedOrigins)))

	var keys handlers.KeyStatus
	issuer := cfg.OIDC.IssuerURL
	if deps.Resolver != nil {
		keys = deps.Resolver
	}

	info := handlers.AppInfo{Version: cfg.Version, Environment: cfg.Environment}
	health := handlers.NewHealthHandler(sqlDB(deps), keys, info, deps.Logger)
	users := handlers.NewUserHandler(deps.Logger)

	table := []route{
		// Health checks
		{http.MethodGet, "/health", health.HandleHealth},
		{http.MethodGet, "/health/ready", health.HandleReadiness},

		// Identity of the caller
		{http.MethodGet, "/me", users.HandleMe},

		// API v1
		{http.MethodGet, "/api/v1/status", handlers.StatusHandler(info, issuer, keys)},
		{http.MethodGet, "/api/v1/roles", users.HandleRoles},
	}

	for _, rt := range table {
		r.Method(rt.method, rt.pattern, auth.Guard(rt.method, rt.pattern, rt.handler))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

func sqlDB(deps *app.Dependencies) *sql.DB {
	if deps.DB == nil {
		return nil
	}
	return deps.DB.DB
}

func corsOptions(development bool, origins []string) cors.Options {
	if development {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Link", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
