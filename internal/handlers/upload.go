// internal/handlers/upload.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type UploadHandler struct {
	storageService *services.StorageService
}

func NewUploadHandler(storageService *services.StorageService) *UploadHandler {
	return &UploadHandler{
		storageService: storageService,
	}
}

// POST /upload (multipart form field "file")
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.HandleServiceError(c, apperr.Validation("file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.HandleServiceError(c, apperr.Validation("failed to open %s", fileHeader.Filename))
		return
	}
	defer file.Close()

	obj, err := h.storageService.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, obj)
}
