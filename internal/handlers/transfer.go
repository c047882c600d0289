// internal/handlers/transfer.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type TransferHandler struct {
	transferService *services.TransferService
}

func NewTransferHandler(transferService *services.TransferService) *TransferHandler {
	return &TransferHandler{
		transferService: transferService,
	}
}

// POST /transfers
func (h *TransferHandler) InitiateTransfer(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req services.InitiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindError(c, err)
		return
	}

	view, err := h.transferService.InitiateTransfer(c.Request.Context(), caller, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.APIResponse{
		Success: true,
		Data:    view,
		Meta:    gin.H{"message": i18n.T(lang, i18n.KeyTransferInitiated)},
	})
}

// GET /transfers/:id
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	certificateID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	view, err := h.transferService.GetTransfer(c.Request.Context(), certificateID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, view)
}

// POST /transfers/:id/sign
func (h *TransferHandler) SignTransfer(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	certificateID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.SignTransferRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BindError(c, err)
			return
		}
	}

	view, err := h.transferService.SignTransfer(c.Request.Context(), caller, certificateID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	message := i18n.T(lang, i18n.KeyTransferSigned)
	if view.IsComplete {
		message = i18n.T(lang, i18n.KeyTransferCompleted)
	}
	utils.SuccessResponseWithMeta(c, view, gin.H{"message": message})
}
