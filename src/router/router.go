package router

import (
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/pyrohost/resticapi/src/config"
	"github.com/pyrohost/resticapi/src/repository"
	"github.com/pyrohost/resticapi/src/router/middleware"
)

// Configure configures the routing infrastructure for this API instance.
func Configure(repo *repository.Repository, cfg *config.Configuration) *gin.Engine {
	gin.SetMode("release")
	if cfg.Debug {
		gin.SetMode("debug")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		log.WithError(err).Warn("failed to configure trusted proxies")
	}
	router.Use(middleware.AttachRequestID(), middleware.RequestLogger(), middleware.SetAccessControlHeaders())
	router.Use(middleware.RateLimit(cfg.Api.RateLimit, cfg.Api.RateBurst))
	router.Use(middleware.AttachRepository(repo))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "The requested resource was not found."})
	})

	router.GET("/stats", getStats)
	router.GET("/snapshots", getSnapshots)
	router.DELETE("/snapshots/:id", deleteSnapshot)
	router.POST("/restore", postRestore)

	router.GET("/api/system", getSystemInformation(cfg.Restic))

	return router
}
