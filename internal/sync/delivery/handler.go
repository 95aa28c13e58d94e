package delivery

import (
	"net/http"
	"strconv"

	conndomain "daybrief-backend/internal/connection/domain"
	syncdomain "daybrief-backend/internal/sync/domain"
	"daybrief-backend/internal/sync/orchestrator"
	syncrepo "daybrief-backend/internal/sync/repository"
	"daybrief-backend/pkg/chroma"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	orch         *orchestrator.Orchestrator
	jobRepo      syncrepo.SyncJobRepository
	chromaClient *chroma.ChromaClient
}

func NewSyncHandler(orch *orchestrator.Orchestrator, jobRepo syncrepo.SyncJobRepository, chromaClient *chroma.ChromaClient) *SyncHandler {
	return &SyncHandler{
		orch:         orch,
		jobRepo:      jobRepo,
		chromaClient: chromaClient,
	}
}

type triggerRequest struct {
	Providers []string `json:"providers" binding:"required,min=1,dive,oneof=mail calendar drive"`
}

// Trigger enqueues a manual sync. A 202 means queued, not finished; progress
// arrives over the SSE stream.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	accepted := h.orch.Enqueue(userID, req.Providers, syncdomain.TriggerManual)
	c.JSON(http.StatusAccepted, gin.H{"queued": accepted})
}

func (h *SyncHandler) ListJobs(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	userID := c.GetString("userID")
	jobs, err := h.jobRepo.FindRecentByUser(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Search runs a semantic query over the user's synced records. Results are
// native record ids with similarity scores; the client resolves them against
// its local mirror.
func (h *SyncHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	if h.chromaClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "semantic search is not configured"})
		return
	}

	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	userID := c.GetString("userID")
	ids, scores, err := h.chromaClient.SearchRecords(c.Request.Context(), userID, query, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	results := make([]gin.H, len(ids))
	for i := range ids {
		results[i] = gin.H{"native_id": ids[i], "score": scores[i]}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Providers lists the provider names a client can ask to sync.
func (h *SyncHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": conndomain.AllProviders})
}
