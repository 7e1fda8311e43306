package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pyrohost/resticapi/src/config"
	"github.com/pyrohost/resticapi/src/router/middleware"
	"github.com/pyrohost/resticapi/src/system"
)

// Returns information about the system this API is running on.
func getSystemInformation(cfg config.ResticConfiguration) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := system.GetSystemInformation(c.Request.Context(), cfg.Binary, cfg.BinaryPath)
		if err != nil {
			middleware.CaptureAndAbort(c, err)
			return
		}

		c.JSON(http.StatusOK, info)
	}
}
