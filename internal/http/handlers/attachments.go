package handlers

import (
	"net/http"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// maxAttachmentSize caps a single uploaded attachment at 25 MB.
const maxAttachmentSize = 25 << 20

// AttachmentHandler handles message attachment uploads
type AttachmentHandler struct {
	storage *services.StorageService
}

// NewAttachmentHandler creates a new attachment handler
func NewAttachmentHandler(storage *services.StorageService) *AttachmentHandler {
	return &AttachmentHandler{storage: storage}
}

// Upload stores a file and returns its attachment descriptor for embedding
// in a later message.
// POST /api/v1/chat/attachments
func (h *AttachmentHandler) Upload(c echo.Context) error {
	if h.storage == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "File storage is not configured"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing file"})
	}
	if fileHeader.Size > maxAttachmentSize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
	}

	attachment, err := h.storage.UploadAttachment(fileHeader)
	if err != nil {
		log.Error().Err(err).Str("file_name", fileHeader.Filename).Msg("attachment upload failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to upload file"})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{"attachment": attachment})
}
