package server

import (
	"github.com/abduss/picvault/internal/auth"
	"github.com/abduss/picvault/internal/config"
	"github.com/abduss/picvault/internal/gallery"
	"github.com/abduss/picvault/internal/logger"
	"github.com/abduss/picvault/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config         config.Config
	DB             pinger
	Store          repositoryChecker
	AuthService    *auth.Service
	GalleryService *gallery.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		public := api.Group("/")
		public.Use(auth.OptionalAuthMiddleware(deps.AuthService))

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		if deps.GalleryService != nil {
			gallery.RegisterRoutes(public, protected, deps.GalleryService)
		}
	}

	return router
}
