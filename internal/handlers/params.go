// internal/handlers/params.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/utils"
)

// uintParam parses a positive ledger id from the path, writing a 400 when it
// is malformed.
func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.HandleServiceError(c, apperr.Validation("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// callerAddress returns the authenticated wallet, writing a 401 when absent.
func callerAddress(c *gin.Context) (string, bool) {
	address, ok := utils.GetAddressFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return address, ok
}
