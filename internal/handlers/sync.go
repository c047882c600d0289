// internal/handlers/sync.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// POST /sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindError(c, err)
		return
	}

	result, err := h.syncService.Trigger(c.Request.Context(), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, result, gin.H{"message": i18n.T(lang, i18n.KeySyncCompleted, result.SyncedCount)})
}

// GET /sync/:chainId
func (h *SyncHandler) GetStatus(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil || chainID == 0 {
		utils.HandleServiceError(c, apperr.Validation("invalid chain id %q", c.Param("chainId")))
		return
	}

	status, err := h.syncService.Status(c.Request.Context(), chainID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, status)
}
