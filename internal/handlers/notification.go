// internal/handlers/notification.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GET /notifications
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))

	inbox, err := h.notificationService.Inbox(c.Request.Context(), caller, unreadOnly)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, inbox)
}

// PUT /notifications/read marks the listed ids, or every unread notification
// when none are given.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req MarkReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BindError(c, err)
			return
		}
	}

	updated, err := h.notificationService.MarkRead(c.Request.Context(), caller, req.IDs)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyNotificationsUpdated),
		"updated": updated,
	})
}
