package api

import (
	"daybrief-backend/internal/auth/delivery"
	authrepo "daybrief-backend/internal/auth/repository"
	authUsecase "daybrief-backend/internal/auth/usecase"
	briefingDelivery "daybrief-backend/internal/briefing/delivery"
	briefingUsecase "daybrief-backend/internal/briefing/usecase"
	connDelivery "daybrief-backend/internal/connection/delivery"
	connUsecase "daybrief-backend/internal/connection/usecase"
	securityDelivery "daybrief-backend/internal/security/delivery"
	securityUsecase "daybrief-backend/internal/security/usecase"
	syncDelivery "daybrief-backend/internal/sync/delivery"
	"daybrief-backend/internal/sync/orchestrator"
	syncrepo "daybrief-backend/internal/sync/repository"
	"daybrief-backend/pkg/chroma"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUc          authUsecase.AuthUsecase
	sseManager      *sse.Manager
	config          *config.Config
	authHandler     *delivery.AuthHandler
	connHandler     *connDelivery.ConnectionHandler
	syncHandler     *syncDelivery.SyncHandler
	briefingHandler *briefingDelivery.BriefingHandler
	vaultHandler    *securityDelivery.VaultHandler
}

func NewHandler(
	cfg *config.Config,
	authUc authUsecase.AuthUsecase,
	fcmRepo authrepo.FCMTokenRepository,
	connUc connUsecase.ConnectionUsecase,
	briefingUc briefingUsecase.BriefingUsecase,
	gate securityUsecase.DLPGate,
	orch *orchestrator.Orchestrator,
	jobRepo syncrepo.SyncJobRepository,
	chromaClient *chroma.ChromaClient,
	sseManager *sse.Manager,
) *Handler {
	return &Handler{
		authUc:          authUc,
		sseManager:      sseManager,
		config:          cfg,
		authHandler:     delivery.NewAuthHandler(authUc, fcmRepo),
		connHandler:     connDelivery.NewConnectionHandler(connUc, orch),
		syncHandler:     syncDelivery.NewSyncHandler(orch, jobRepo, chromaClient),
		briefingHandler: briefingDelivery.NewBriefingHandler(briefingUc),
		vaultHandler:    securityDelivery.NewVaultHandler(gate),
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

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

	SetupRoutes(r, h.authUc, h.sseManager, h.authHandler, h.connHandler, h.syncHandler, h.briefingHandler, h.vaultHandler)

	return r.Run(addr)
}
