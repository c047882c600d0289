// internal/handlers/invoice.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type InvoiceHandler struct {
	invoiceService *services.InvoiceService
}

func NewInvoiceHandler(invoiceService *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// POST /invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req services.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindError(c, err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), caller, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, invoice)
}

// GET /invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoiceID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, invoice)
}

// GET /contract/invoices/:id reads the invoice straight from the ledger.
func (h *InvoiceHandler) GetContractInvoice(c *gin.Context) {
	invoiceID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetContractInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, invoice)
}
