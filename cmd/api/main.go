package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/background"
	"github.com/stallmarket/bastion/internal/config"
	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/handlers"
	middlewareCustom "github.com/stallmarket/bastion/internal/middleware"
	"github.com/stallmarket/bastion/internal/otp"
	"github.com/stallmarket/bastion/internal/repositories"
	"github.com/stallmarket/bastion/internal/routes"
	"github.com/stallmarket/bastion/internal/services"
	"github.com/stallmarket/bastion/migrations"
	pkgauth "github.com/stallmarket/bastion/pkg/auth"
	pkglogger "github.com/stallmarket/bastion/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	settingsRepo := repositories.NewMFASettingsRepository(db)
	backupCodeRepo := repositories.NewBackupCodeRepository(db)
	deviceRepo := repositories.NewTrustedDeviceRepository(db)
	attemptRepo := repositories.NewMFAAttemptRepository(db)
	challengeRepo := repositories.NewEmailChallengeRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	roleDirectory := repositories.NewRoleDirectory(db)
	ownershipRegistry := repositories.NewOwnershipRegistry(db)
	credentialSource := repositories.NewCredentialSource(db)

	// Audit sink (dual write: slog + database)
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, auditLogger, logger)

	// Layered access evaluator
	evaluator := access.NewEvaluator(roleDirectory, ownershipRegistry, auditService, logger)

	// Token manager for actor resolution
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)

	// TOTP engine
	engine := otp.NewEngine(cfg.MFA.Issuer)

	// Timing padding for verification responses
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.MFA.TimingBaseDelayMs,
		RandomDelayMs: cfg.MFA.TimingRandomDelayMs,
	})

	// MFA services
	vault := services.NewBackupCodeVault(backupCodeRepo, auditService, logger, cfg.MFA.BackupCodeCount)
	deviceService := services.NewTrustedDeviceService(deviceRepo, auditService, logger, cfg.MFA.TrustedDeviceTTL)

	challengeSender, err := services.NewSESChallengeSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize challenge sender", slog.Any("error", err))
		os.Exit(1)
	}
	challengeService := services.NewEmailChallengeService(challengeRepo, challengeSender, auditService, logger, cfg.MFA.ChallengeExpiry)

	reauthVerifier := pkgauth.NewPasswordReauthVerifier(credentialSource)

	mfaService := services.NewMFAService(
		settingsRepo,
		attemptRepo,
		vault,
		deviceService,
		challengeService,
		engine,
		reauthVerifier,
		timingDelay,
		auditService,
		logger,
		services.MFAConfig{
			VerifyWindow:  cfg.MFA.VerifyWindow,
			MaxAttempts:   cfg.MFA.MaxAttempts,
			AttemptWindow: cfg.MFA.AttemptWindow,
		},
	)

	// Background pruning of stale attempts and challenges
	cleanupManager := background.NewCleanupManager(attemptRepo, challengeRepo, logger, 1*time.Hour, 24*time.Hour)

	// Initialize handlers
	mfaHandler := handlers.NewMFAHandler(mfaService, deviceService, challengeService, nil, logger)
	deviceHandler := handlers.NewDeviceHandler(deviceService, logger)
	auditHandler := handlers.NewAuditHandler(auditService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.Env)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, mfaHandler, deviceHandler, auditHandler, tokenManager, evaluator, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// runMigrations applies any pending embedded migrations. Goose wants a
// database/sql handle, so we borrow the pool's connection config.
func runMigrations(db *database.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)
	defer sqlDB.Close()

	return goose.Up(sqlDB, ".")
}
