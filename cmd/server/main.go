package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"golang.org/x/crypto/bcrypt"

	"github.com/audiostack/backend/internal/cache"
	"github.com/audiostack/backend/internal/config"
	"github.com/audiostack/backend/internal/database"
	"github.com/audiostack/backend/internal/handlers"
	"github.com/audiostack/backend/internal/logging"
	"github.com/audiostack/backend/internal/middleware"
	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/audiostack/backend/internal/routes"
	"github.com/audiostack/backend/internal/services"
	"github.com/audiostack/backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.RefreshSecret == "" {
		slog.Error("REFRESH_TOKEN_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Revocation cache: Redis when configured, in-process otherwise.
	// Without Redis every token validation falls back to the in-memory
	// store, which does not survive restarts or span replicas.
	var kv cache.KV
	var kvBackend string
	if cfg.RedisURL != "" {
		redisKV, err := cache.NewRedisKV(context.Background(), cfg.RedisURL, cfg.RedisPassword, cfg.RedisTLS)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisKV.Close()
		kv = redisKV
		kvBackend = "redis"
	} else {
		slog.Warn("REDIS_URL not set, using in-memory token cache")
		kv = cache.NewMemoryKV()
		kvBackend = "memory"
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	// Repositories and services
	userRepo := repositories.NewUserRepository(database.DB)
	audioRepo := repositories.NewAudioRepository(database.DB)

	store := tokens.NewStore(kv)
	issuer := tokens.NewIssuer(store, cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessExpiry, cfg.RefreshExpiry)
	validator := tokens.NewValidator(store, userRepo, cfg.JWTSecret, cfg.RefreshSecret)

	authService := services.NewAuthService(userRepo, store, issuer, validator)
	audioService := services.NewAudioService(audioRepo)
	userService := services.NewUserService(userRepo, audioRepo)

	seedAdmin(cfg, userRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, cfg)
	audioHandler := handlers.NewAudioHandler(audioService, validator, cfg)
	userHandler := handlers.NewUserHandler(userService)
	healthHandler := handlers.NewHealthHandler(kvBackend)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    int(cfg.MaxUploadSize) + 1024*1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, validator, authHandler, audioHandler, userHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

// seedAdmin creates the default admin account on first boot when
// DEFAULT_ADMIN_PASSWORD is set. Existing accounts are left alone.
func seedAdmin(cfg *config.Config, users repositories.UserRepository) {
	if cfg.AdminPassword == "" {
		return
	}
	ctx := context.Background()
	if _, err := users.FindByUsernameOrEmail(ctx, cfg.AdminUsername); err == nil {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), 12)
	if err != nil {
		slog.Error("admin seed failed", "error", err)
		return
	}
	admin := &models.User{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		Password:     string(hash),
		TokenVersion: 1,
	}
	if err := users.Create(ctx, admin); err != nil {
		slog.Error("admin seed failed", "error", err)
		return
	}
	slog.Info("default admin account created", "username", cfg.AdminUsername)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Request failed",
		"message": message,
	})
}
