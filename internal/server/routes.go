package server

import (
	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Entity routes
	apiRoutes.GET("/search", routes.SearchHandler, middleware.RequirePermission("entity.search"))
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler, middleware.RequirePermission("entity.view"))
	apiRoutes.GET("/entities/:id/network", routes.GetEntityNetworkHandler, middleware.RequirePermission("entity.view"))
	apiRoutes.GET("/entities/:id/ownership", routes.GetEntityOwnershipHandler, middleware.RequirePermission("entity.view"))
	apiRoutes.GET("/entities/:id/capture", routes.GetEntityCaptureHandler, middleware.RequirePermission("capture.view"))
	apiRoutes.GET("/entities/:id/timeline", routes.GetEntityTimelineHandler, middleware.RequirePermission("timeline.view"))

	// Screening routes
	apiRoutes.POST("/screen", routes.ScreenHandler, middleware.RequirePermission("screen.run"))
	apiRoutes.POST("/screen/quick", routes.QuickScreenHandler, middleware.RequirePermission("screen.run"))
	apiRoutes.POST("/screen/jobs", routes.CreateScreenJobHandler, middleware.RequirePermission("screen.job:create"))
	apiRoutes.GET("/screen/jobs/:id", routes.GetScreenJobHandler, middleware.RequirePermission("screen.job:view"))
}
