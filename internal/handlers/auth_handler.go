package handlers

import (
	"errors"
	"regexp"
	"time"

	"github.com/audiostack/backend/internal/config"
	"github.com/audiostack/backend/internal/dto"
	"github.com/audiostack/backend/internal/middleware"
	"github.com/audiostack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const refreshCookieName = "refreshToken"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("Invalid request body"))
	}
	if details := validateStruct(req); details != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed(details))
	}
	if !usernamePattern.MatchString(req.Username) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed([]dto.FieldError{
			{Field: "username", Message: "Username can only contain letters, numbers, and underscores"},
		}))
	}

	result, err := h.authService.Register(c.UserContext(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.AlreadyTaken("username"))
		case errors.Is(err, services.ErrEmailTaken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.AlreadyTaken("email"))
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
		}
	}

	h.setRefreshCookie(c, result.RefreshToken)
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{
		Message:     "User created successfully",
		AccessToken: result.AccessToken,
		User:        dto.NewUserResponse(result.User),
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("Invalid request body"))
	}
	if details := validateStruct(req); details != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed(details))
	}

	result, err := h.authService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidCredentials())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	h.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(dto.AuthResponse{
		Message:     "Login successful",
		AccessToken: result.AccessToken,
		User:        dto.NewUserResponse(result.User),
	})
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	raw := c.Cookies(refreshCookieName)
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
	}

	result, err := h.authService.Refresh(c.UserContext(), raw)
	if err != nil {
		// Whatever went wrong, the cookie the client holds is poison now.
		h.clearRefreshCookie(c)
		if errors.Is(err, services.ErrInvalidToken) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	h.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(dto.RefreshResponse{AccessToken: result.AccessToken})
}

// Logout always succeeds and always clears the cookie, even when no valid
// refresh token was presented.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.authService.Logout(c.UserContext(), c.Cookies(refreshCookieName))
	h.clearRefreshCookie(c)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	cleared, err := h.authService.LogoutAll(c.UserContext(), principal.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	h.clearRefreshCookie(c)
	return c.JSON(dto.LogoutAllResponse{ClearedTokens: cleared})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	user, err := h.authService.GetUser(c.UserContext(), principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.UserNotFound())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

func (h *AuthHandler) Usage(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	stats, err := h.authService.Usage(c.UserContext(), principal.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.JSON(dto.UsageResponse{
		LoginCount:   stats.LoginCount,
		RefreshCount: stats.RefreshCount,
		LogoutCount:  stats.LogoutCount,
	})
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.RefreshExpiry.Seconds()),
		HTTPOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
