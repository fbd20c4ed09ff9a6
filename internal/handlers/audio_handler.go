package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/audiostack/backend/internal/config"
	"github.com/audiostack/backend/internal/dto"
	"github.com/audiostack/backend/internal/middleware"
	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/audiostack/backend/internal/services"
	"github.com/audiostack/backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Some players upload audio inside video containers, so those are allowed.
var allowedAudioTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/wav":  true,
	"audio/ogg":  true,
	"audio/mp4":  true,
	"audio/aac":  true,
	"audio/flac": true,
	"audio/webm": true,
	"video/mp4":  true,
	"video/webm": true,
}

type AudioHandler struct {
	audioService *services.AudioService
	validator    *tokens.Validator
	cfg          *config.Config
}

func NewAudioHandler(audioService *services.AudioService, validator *tokens.Validator, cfg *config.Config) *AudioHandler {
	return &AudioHandler{audioService: audioService, validator: validator, cfg: cfg}
}

func (h *AudioHandler) Upload(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("No audio file provided"))
	}
	if file.Size > h.cfg.MaxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("File too large"))
	}

	mimeType := file.Header.Get("Content-Type")
	if !allowedAudioTypes[mimeType] {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("Invalid file type. Only audio files are allowed."))
	}

	description := c.FormValue("description", "")
	if len(description) > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed([]dto.FieldError{
			{Field: "description", Message: "Description too long"},
		}))
	}
	category := c.FormValue("category", "")
	if !models.ValidCategory(category) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed([]dto.FieldError{
			{Field: "category", Message: "Invalid category"},
		}))
	}

	filename := fmt.Sprintf("audio-%d-%s%s",
		time.Now().UnixMilli(), uuid.New().String()[:8], filepath.Ext(file.Filename))
	savePath := filepath.Join(h.cfg.UploadDir, filename)
	if err := c.SaveFile(file, savePath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	record := &models.AudioFile{
		UserID:       principal.ID,
		Filename:     filename,
		OriginalName: file.Filename,
		Description:  description,
		Category:     category,
		FilePath:     savePath,
		FileSize:     file.Size,
		MimeType:     mimeType,
	}
	if err := h.audioService.Create(c.UserContext(), record); err != nil {
		os.Remove(savePath)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Audio file uploaded successfully",
		"audioFile": dto.NewAudioFileResponse(record),
	})
}

func (h *AudioHandler) MyFiles(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	filter := repositories.AudioFilter{
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 10),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	files, total, err := h.audioService.ListForUser(c.UserContext(), principal.ID, filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	responses := make([]dto.AudioFileResponse, 0, len(files))
	for i := range files {
		responses = append(responses, dto.NewAudioFileResponse(&files[i]))
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 10
	}
	pages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))

	return c.JSON(dto.AudioListResponse{
		AudioFiles: responses,
		Pagination: dto.Pagination{
			Page:  filter.Page,
			Limit: filter.Limit,
			Total: total,
			Pages: pages,
		},
	})
}

func (h *AudioHandler) Get(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
	}

	file, err := h.audioService.Get(c.UserContext(), id, principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrAudioNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.JSON(fiber.Map{"audioFile": dto.NewAudioFileResponse(file)})
}

func (h *AudioHandler) Update(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
	}

	var req dto.UpdateAudioRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.BadRequest("Invalid request body"))
	}
	if details := validateStruct(req); details != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed(details))
	}

	file, err := h.audioService.Update(c.UserContext(), id, principal.ID, req.Description, req.Category)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAudioNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
		case errors.Is(err, services.ErrInvalidCategory):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ValidationFailed([]dto.FieldError{
				{Field: "category", Message: "Invalid category"},
			}))
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
		}
	}

	return c.JSON(fiber.Map{
		"message":   "Audio file updated successfully",
		"audioFile": dto.NewAudioFileResponse(file),
	})
}

func (h *AudioHandler) Delete(c *fiber.Ctx) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
	}

	if err := h.audioService.Delete(c.UserContext(), id, principal.ID); err != nil {
		if errors.Is(err, services.ErrAudioNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	return c.JSON(fiber.Map{"message": "Audio file deleted successfully"})
}

func (h *AudioHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(dto.CategoriesResponse{Categories: models.Categories})
}

// Stream serves the raw file bytes. Browser audio elements cannot set an
// Authorization header, so the access token arrives as a query parameter
// and goes through the full validation chain.
func (h *AudioHandler) Stream(c *fiber.Ctx) error {
	raw := c.Query("token")
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
	}

	principal, err := h.validator.ValidateAccessToken(c.UserContext(), raw)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
	}

	file, err := h.audioService.Get(c.UserContext(), id, principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrAudioNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("Audio file"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
	}

	info, err := os.Stat(file.FilePath)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.NotFound("File"))
	}

	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	c.Set(fiber.HeaderAcceptRanges, "bytes")
	return c.SendFile(file.FilePath)
}
