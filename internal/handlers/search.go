// internal/handlers/search.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type SearchHandler struct {
	searchService    *services.SearchService
	analyticsService *services.AnalyticsService
}

func NewSearchHandler(searchService *services.SearchService, analyticsService *services.AnalyticsService) *SearchHandler {
	return &SearchHandler{
		searchService:    searchService,
		analyticsService: analyticsService,
	}
}

// GET /search?q=&type=all|products|users
func (h *SearchHandler) Search(c *gin.Context) {
	results, err := h.searchService.Search(c.Request.Context(), c.Query("q"), c.Query("type"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, results)
}

// GET /analytics?period=7d|30d|90d|1y
func (h *SearchHandler) Analytics(c *gin.Context) {
	summary, err := h.analyticsService.Summary(c.Request.Context(), c.Query("period"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}
