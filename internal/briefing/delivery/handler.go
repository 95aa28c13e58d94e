package delivery

import (
	"net/http"

	"daybrief-backend/internal/briefing"
	"daybrief-backend/internal/briefing/usecase"

	"github.com/gin-gonic/gin"
)

type BriefingHandler struct {
	briefingUsecase usecase.BriefingUsecase
}

func NewBriefingHandler(briefingUsecase usecase.BriefingUsecase) *BriefingHandler {
	return &BriefingHandler{briefingUsecase: briefingUsecase}
}

func (h *BriefingHandler) Today(c *gin.Context) {
	userID := c.GetString("userID")
	b, err := h.briefingUsecase.Today(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no briefing generated yet"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BriefingHandler) Regenerate(c *gin.Context) {
	userID := c.GetString("userID")
	b, err := h.briefingUsecase.Regenerate(c.Request.Context(), userID, []string{briefing.ReasonManual})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b)
}
