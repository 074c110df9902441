package api

import (
	"net/http"

	authdelivery "mailpilot-backend/internal/auth/delivery"
	authrepo "mailpilot-backend/internal/auth/repository"
	authusecase "mailpilot-backend/internal/auth/usecase"
	conndelivery "mailpilot-backend/internal/connection/delivery"
	connusecase "mailpilot-backend/internal/connection/usecase"
	pipedelivery "mailpilot-backend/internal/pipeline/delivery"
	piperepo "mailpilot-backend/internal/pipeline/repository"
	pipeusecase "mailpilot-backend/internal/pipeline/usecase"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authusecase.AuthUsecase,
	connUc connusecase.ConnectionUsecase,
	pipelineUc pipeusecase.PipelineUsecase,
	ruleRepo piperepo.RuleRepository,
	deviceRepo authrepo.DeviceTokenRepository,
) {
	authHandler := authdelivery.NewAuthHandler(authUc, deviceRepo)
	connectionHandler := conndelivery.NewConnectionHandler(connUc)
	pipelineHandler := pipedelivery.NewPipelineHandler(pipelineUc, ruleRepo)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", authdelivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// Device token routes (protected)
		devices := api.Group("/devices")
		devices.Use(authdelivery.AuthMiddleware(authUc))
		{
			devices.POST("/register", authHandler.RegisterDeviceToken)
			devices.DELETE("/:token", authHandler.UnregisterDeviceToken)
		}

		// Mailbox connection routes (protected)
		connections := api.Group("/connections")
		connections.Use(authdelivery.AuthMiddleware(authUc))
		{
			connections.GET("", connectionHandler.List)
			connections.GET("/gmail/auth-url", connectionHandler.GmailAuthURL)
			connections.POST("/gmail", connectionHandler.ConnectGmail)
			connections.POST("/imap", connectionHandler.ConnectIMAP)
			connections.DELETE("/:id", connectionHandler.Disconnect)
		}

		// Pipeline routes (protected)
		pipeline := api.Group("/pipeline")
		pipeline.Use(authdelivery.AuthMiddleware(authUc))
		{
			pipeline.POST("/run", pipelineHandler.Run)
		}

		// Review-flag routes (protected)
		flags := api.Group("/review-flags")
		flags.Use(authdelivery.AuthMiddleware(authUc))
		{
			flags.GET("", pipelineHandler.ListReviewFlags)
			flags.POST("/:id/resolve", pipelineHandler.ResolveReviewFlag)
			flags.POST("/:id/dismiss", pipelineHandler.DismissReviewFlag)
		}

		// Rule routes (protected)
		rules := api.Group("/rules")
		rules.Use(authdelivery.AuthMiddleware(authUc))
		{
			rules.GET("", pipelineHandler.ListRules)
			rules.POST("", pipelineHandler.CreateRule)
			rules.PUT("/:id", pipelineHandler.UpdateRule)
			rules.DELETE("/:id", pipelineHandler.DeleteRule)
		}
	}
}
