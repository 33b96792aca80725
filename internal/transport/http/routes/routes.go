package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/infra/config"
	"github.com/rimsurge/identity-service/internal/transport/http/handlers"
	"github.com/rimsurge/identity-service/internal/transport/http/middleware"
	"github.com/rimsurge/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Verification *usecase.VerificationService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	if len(deps.Config.CSRF.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.CSRF.AllowedOrigins))
	}

	checks := make(map[string]handlers.ReadinessCheck, 2)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}
	healthHandler := handlers.NewHealthHandler(checks)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	csrf := middleware.NewCSRFGuard(deps.Config.CSRF.AllowedOrigins)
	isDev := deps.Config.App.Env == "development" || deps.Config.App.Env == "test"

	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, !isDev)
	verificationHandler := handlers.NewVerificationHandler(deps.Services.Verification)
	requireAuth := middleware.RequireAuth(deps.Services.Auth)

	api := r.Group("/api/v1")
	auth := api.Group("/auth")
	{
		login := []gin.HandlerFunc{csrf.OriginOnly()}
		login = append(login, rateLimitFor(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)...)
		login = append(login, authHandler.Login)
		auth.POST("/login", login...)

		register := []gin.HandlerFunc{csrf.OriginOnly()}
		register = append(register, rateLimitFor(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts)...)
		register = append(register, authHandler.Register)
		auth.POST("/register", register...)

		auth.POST("/refresh", csrf.DoubleSubmit(), authHandler.Refresh)
		auth.POST("/logout", csrf.DoubleSubmit(), authHandler.Logout)

		sendCode := []gin.HandlerFunc{csrf.OriginOnly()}
		sendCode = append(sendCode, rateLimitFor(deps, "auth_send_code_ip", deps.Config.RateLimit.SendCodeMaxAttempts)...)
		sendCode = append(sendCode, verificationHandler.SendCode)
		auth.POST("/send-verification-code", sendCode...)

		auth.POST("/verify-code", csrf.OriginOnly(), verificationHandler.VerifyCode)

		auth.GET("/me", requireAuth, authHandler.Me)
	}

	return r
}

func rateLimitFor(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
