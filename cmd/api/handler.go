package api

import (
	authrepo "mailpilot-backend/internal/auth/repository"
	authusecase "mailpilot-backend/internal/auth/usecase"
	connusecase "mailpilot-backend/internal/connection/usecase"
	piperepo "mailpilot-backend/internal/pipeline/repository"
	pipeusecase "mailpilot-backend/internal/pipeline/usecase"
	"mailpilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase       authusecase.AuthUsecase
	connectionUsecase connusecase.ConnectionUsecase
	pipelineUsecase   pipeusecase.PipelineUsecase
	ruleRepo          piperepo.RuleRepository
	deviceRepo        authrepo.DeviceTokenRepository
	config            *config.Config
}

func NewHandler(
	authUc authusecase.AuthUsecase,
	connUc connusecase.ConnectionUsecase,
	pipelineUc pipeusecase.PipelineUsecase,
	ruleRepo piperepo.RuleRepository,
	deviceRepo authrepo.DeviceTokenRepository,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:       authUc,
		connectionUsecase: connUc,
		pipelineUsecase:   pipelineUc,
		ruleRepo:          ruleRepo,
		deviceRepo:        deviceRepo,
		config:            cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.connectionUsecase, h.pipelineUsecase, h.ruleRepo, h.deviceRepo)

	return r.Run(addr)
}
