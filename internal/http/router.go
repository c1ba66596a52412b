package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	if cfg.RequestLogging {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(SecretMiddleware())

	healthController := NewHealthController(cfg.Database, cfg.Registry, cfg.Version)
	router.GET("/health", healthController.Status)

	api := router.Group("/api")

	sourcesController := NewSourcesController(cfg.Sources, cfg.Registry)
	api.GET("/sources", sourcesController.List)
	api.POST("/sources", sourcesController.Save)
	api.GET("/sources/active", sourcesController.Active)
	api.PUT("/sources/active", sourcesController.SetActive)
	api.DELETE("/sources/:name", sourcesController.Delete)

	libraryController := NewLibraryController(cfg.Handlers, cfg.Registry, cfg.Secrets, cfg.Library, cfg.Scheduler)
	api.GET("/library/:kind/books", libraryController.Books)
	api.GET("/library/:kind/entries", libraryController.Entries)
	api.POST("/library/:kind/delete", libraryController.Delete)
	if cfg.Scheduler != nil {
		api.GET("/library/sync", libraryController.SyncStatus)
		api.POST("/library/sync", libraryController.SyncNow)
	}

	return router
}
