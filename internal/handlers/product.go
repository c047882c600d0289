// internal/handlers/product.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
	}
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params := services.ProductListParams{
		PaginationParams: utils.GetPaginationParams(c),
		Owner:            c.Query("owner"),
		Status:           models.ProductStatus(c.Query("status")),
	}

	_, result, err := h.productService.ListProducts(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, result)
}

// POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	var req services.RegisterProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindError(c, err)
		return
	}

	product, err := h.productService.RegisterProduct(c.Request.Context(), caller, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, product)
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), productID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, product)
}

// PUT /products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	productID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindError(c, err)
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), caller, productID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProductUpdated),
		"product": product,
	})
}

// GET /products/:id/audit-trail
func (h *ProductHandler) GetAuditTrail(c *gin.Context) {
	productID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	trail, err := h.productService.AuditTrail(c.Request.Context(), productID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, trail)
}
