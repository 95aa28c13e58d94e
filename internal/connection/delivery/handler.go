package delivery

import (
	"net/http"

	conndomain "daybrief-backend/internal/connection/domain"
	conndto "daybrief-backend/internal/connection/dto"
	"daybrief-backend/internal/connection/usecase"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/orchestrator"

	"github.com/gin-gonic/gin"
)

type ConnectionHandler struct {
	connUsecase usecase.ConnectionUsecase
	orch        *orchestrator.Orchestrator
}

func NewConnectionHandler(connUsecase usecase.ConnectionUsecase, orch *orchestrator.Orchestrator) *ConnectionHandler {
	return &ConnectionHandler{
		connUsecase: connUsecase,
		orch:        orch,
	}
}

func (h *ConnectionHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	conns, err := h.connUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

// ConnectGoogle exchanges the OAuth code, stores the connection, and kicks
// off the initial sync for it.
func (h *ConnectionHandler) ConnectGoogle(c *gin.Context) {
	var req conndto.GoogleConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conn, err := h.connUsecase.ConnectGoogle(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	h.orch.Enqueue(userID, []string{conn.Provider}, syncdomain.TriggerConnect)
	c.JSON(http.StatusCreated, conn)
}

func (h *ConnectionHandler) ConnectIMAP(c *gin.Context) {
	var req conndto.IMAPConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conn, err := h.connUsecase.ConnectIMAP(userID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.orch.Enqueue(userID, []string{conndomain.ProviderMail}, syncdomain.TriggerConnect)
	c.JSON(http.StatusCreated, conn)
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	providerName := c.Param("provider")
	switch providerName {
	case conndomain.ProviderMail, conndomain.ProviderCalendar, conndomain.ProviderDrive:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	userID := c.GetString("userID")
	if err := h.connUsecase.Disconnect(c.Request.Context(), userID, providerName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}
