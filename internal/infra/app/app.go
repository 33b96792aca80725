package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/config"
	"github.com/rimsurge/identity-service/internal/infra/database"
	kafkainfra "github.com/rimsurge/identity-service/internal/infra/kafka"
	"github.com/rimsurge/identity-service/internal/infra/logger"
	"github.com/rimsurge/identity-service/internal/infra/mail"
	redisinfra "github.com/rimsurge/identity-service/internal/infra/redis"
	"github.com/rimsurge/identity-service/internal/infra/security"
	postgresrepo "github.com/rimsurge/identity-service/internal/repository/postgres"
	redisrepo "github.com/rimsurge/identity-service/internal/repository/redis"
	"github.com/rimsurge/identity-service/internal/transport/http/middleware"
	"github.com/rimsurge/identity-service/internal/transport/http/routes"
	"github.com/rimsurge/identity-service/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	issuer, err := security.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var mailer port.Mailer
	if cfg.Mail.DevMode || cfg.Mail.Host == "" {
		log.Info("mail relay not configured, logging messages instead")
		mailer = mail.NewDevMailer(log)
	} else {
		mailer = mail.NewSMTPMailer(cfg.Mail, log)
	}

	users := postgresrepo.NewUserRepository(pool)
	refreshStore := redisrepo.NewRefreshTokenRepository(redisClient.Client())
	codeStore := redisrepo.NewCodeRepository(redisClient.Client())
	cooldowns := redisrepo.NewCooldownRepository(redisClient.Client())
	abuse := redisrepo.NewAbuseRepository(redisClient.Client())
	existsCache := redisrepo.NewExistsCacheRepository(redisClient.Client())

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "identity:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	authService := usecase.NewAuthService(cfg, users, refreshStore, issuer, eventPublisher, log)
	verificationService := usecase.NewVerificationService(cfg, codeStore, cooldowns, abuse, existsCache, users, mailer, eventPublisher, log)
	registrationService := usecase.NewRegistrationService(cfg, users, verificationService, authService, eventPublisher, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Verification: verificationService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
