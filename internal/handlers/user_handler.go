package handlers

import (
	"errors"

	"github.com/audiostack/backend/internal/dto"
	"github.com/audiostack/backend/internal/middleware"
	"github.com/audiostack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	profiles, err := h.userService.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	responses := make([]dto.UserProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, dto.NewUserProfileResponse(p.User, p.AudioFileCount))
	}
	return c.JSON(fiber.Map{"users": responses})
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, ok := selfOnly(c)
	if !ok {
		return nil
	}

	profile, err := h.userService.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("User"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.JSON(fiber.Map{"user": dto.NewUserProfileResponse(profile.User, profile.AudioFileCount)})
}

func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, ok := selfOnly(c)
	if !ok {
		return nil
	}

	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("Invalid request body"))
	}
	if details := validateStruct(req); details != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed(details))
	}

	user, err := h.userService.Update(c.UserContext(), id, services.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("User"))
		case errors.Is(err, services.ErrUsernameTaken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.AlreadyTaken("username"))
		case errors.Is(err, services.ErrEmailTaken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.AlreadyTaken("email"))
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
		}
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    dto.NewUserResponse(user),
	})
}

func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, ok := selfOnly(c)
	if !ok {
		return nil
	}

	if err := h.userService.Delete(c.UserContext(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}
	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}

// selfOnly parses the :id param and rejects requests that target another
// user's profile. When it returns false the response has been written.
func selfOnly(c *fiber.Ctx) (uuid.UUID, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusNotFound).JSON(dto.NotFound("User"))
		return uuid.Nil, false
	}
	if id != p.ID {
		_ = c.Status(fiber.StatusForbidden).JSON(dto.AccessDenied())
		return uuid.Nil, false
	}
	return id, true
}
