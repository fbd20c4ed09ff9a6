package handlers

import (
	"time"

	"github.com/audiostack/backend/internal/database"
	"github.com/audiostack/backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	cacheBackend string
}

func NewHealthHandler(cacheBackend string) *HealthHandler {
	return &HealthHandler{cacheBackend: cacheBackend}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Cache:     h.cacheBackend,
	})
}
