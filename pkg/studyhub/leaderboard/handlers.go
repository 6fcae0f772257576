package leaderboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
)

// Handler handles leaderboard requests
type Handler struct {
	service *Service
}

// NewHandler creates a new leaderboard handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the leaderboard route on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leaderboard/", h.Get)
}

// Get returns both rankings
// @Summary Leaderboard
// @Description Users by uploaded material count and profiles by score
// @Tags leaderboard
// @Produce json
// @Success 200 {object} Board
// @Router /leaderboard/ [get]
func (h *Handler) Get(c *gin.Context) {
	board, err := h.service.Get(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}
