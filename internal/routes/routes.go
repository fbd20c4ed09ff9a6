package routes

import (
	"time"

	"github.com/audiostack/backend/internal/config"
	"github.com/audiostack/backend/internal/handlers"
	"github.com/audiostack/backend/internal/middleware"
	"github.com/audiostack/backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	validator *tokens.Validator,
	authHandler *handlers.AuthHandler,
	audioHandler *handlers.AudioHandler,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limit: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	jwtGate := middleware.JWTProtected(cfg)
	tokenGuard := middleware.TokenGuard(validator)

	// Auth — stricter rate limit on the credential-bearing endpoints
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/logout-all", jwtGate, tokenGuard, authHandler.LogoutAll)
	auth.Get("/me", jwtGate, tokenGuard, authHandler.Me)
	auth.Get("/usage", jwtGate, tokenGuard, authHandler.Usage)

	// Audio — categories and the streaming endpoint authenticate without
	// the Authorization header, everything else is bearer-protected
	audio := api.Group("/audio")
	audio.Get("/categories/list", audioHandler.Categories)
	audio.Get("/:id/file", audioHandler.Stream)
	audio.Post("/upload", jwtGate, tokenGuard, audioHandler.Upload)
	audio.Get("/my-files", jwtGate, tokenGuard, audioHandler.MyFiles)
	audio.Get("/:id", jwtGate, tokenGuard, audioHandler.Get)
	audio.Put("/:id", jwtGate, tokenGuard, audioHandler.Update)
	audio.Delete("/:id", jwtGate, tokenGuard, audioHandler.Delete)

	// Users
	users := api.Group("/users", jwtGate, tokenGuard)
	users.Get("/", userHandler.List)
	users.Get("/:id", userHandler.Get)
	users.Put("/:id", userHandler.Update)
	users.Delete("/:id", userHandler.Delete)
}
