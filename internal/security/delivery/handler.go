package delivery

import (
	"net/http"

	"daybrief-backend/internal/security/usecase"

	"github.com/gin-gonic/gin"
)

type VaultHandler struct {
	gate usecase.DLPGate
}

func NewVaultHandler(gate usecase.DLPGate) *VaultHandler {
	return &VaultHandler{gate: gate}
}

type revealRequest struct {
	Token string `json:"token" binding:"required"`
}

// Reveal decrypts the original value behind a redaction token. Scoped to the
// authenticated user; a token from someone else's data is a 404.
func (h *VaultHandler) Reveal(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	value, err := h.gate.Reveal(userID, req.Token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": req.Token, "value": value})
}
