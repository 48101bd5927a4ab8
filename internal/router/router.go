package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/handlers"
	"github.com/monocle-dev/crons/internal/middleware"
)

type Options struct {
	Engine         *checkins.Engine
	Query          *checkins.QueryService
	AllowedOrigins []string
}

func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length", "Link"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	checkInHandler := &handlers.CheckInHandler{Engine: opts.Engine, Query: opts.Query}

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/:project_id", middleware.AuthMiddleware(), handlers.WebSocket)
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
			auth.PATCH("/me", middleware.AuthMiddleware(), handlers.UpdateUser)
			auth.DELETE("/me", middleware.AuthMiddleware(), handlers.DeleteUser)
		}

		projects := api.Group("/projects", middleware.AuthMiddleware())
		{
			projects.POST("", handlers.CreateProject)
			projects.GET("", handlers.ListProjects)
			projects.PATCH("/:project_id", handlers.UpdateProject)
			projects.DELETE("/:project_id", handlers.DeleteProject)

			projects.GET("/:project_id/dashboard", handlers.GetDashboard)

			projects.POST("/:project_id/keys", handlers.CreateProjectKey)
			projects.GET("/:project_id/keys", handlers.ListProjectKeys)
			projects.DELETE("/:project_id/keys/:key_id", handlers.RevokeProjectKey)

			projects.POST("/:project_id/members", handlers.AddProjectMember)

			projects.POST("/:project_id/monitors", handlers.CreateMonitor)
			projects.GET("/:project_id/monitors", handlers.GetMonitors)
		}

		monitors := api.Group("/monitors/:monitor_id")
		{
			monitors.GET("", middleware.AuthMiddleware(), handlers.GetMonitor)
			monitors.PUT("", middleware.AuthMiddleware(), handlers.UpdateMonitor)
			monitors.DELETE("", middleware.AuthMiddleware(), handlers.DeleteMonitor)

			// Job runners post with a project DSN, dashboards read with a user token.
			monitors.POST("/checkins", middleware.CheckInAuthMiddleware(), checkInHandler.Create)
			monitors.GET("/checkins", middleware.CheckInAuthMiddleware(), checkInHandler.List)
		}
	}

	return r
}
