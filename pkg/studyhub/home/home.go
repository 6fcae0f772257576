// Package home serves the logged-in dashboard.
package home

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/leaderboard"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"gorm.io/gorm"
)

// TopUsersLimit is how many uploaders the dashboard shows
const TopUsersLimit = 5

// Dashboard is the home page data
type Dashboard struct {
	TotalMaterials int64                  `json:"total_materials"`
	TotalGroups    int64                  `json:"total_groups"`
	UserMaterials  int64                  `json:"user_materials"`
	TopUsers       []leaderboard.UserRank `json:"top_users"`
}

// Service builds dashboards
type Service struct {
	db     *gorm.DB
	ranker *leaderboard.Service
}

// NewService creates a new dashboard service
func NewService(db *gorm.DB, ranker *leaderboard.Service) *Service {
	return &Service{db: db, ranker: ranker}
}

// Dashboard computes the home page for userID
func (s *Service) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &Dashboard{}

	if err := db.Model(&models.StudyMaterial{}).Count(&d.TotalMaterials).Error; err != nil {
		return nil, fmt.Errorf("count materials: %w", err)
	}
	if err := db.Model(&models.StudyGroup{}).Count(&d.TotalGroups).Error; err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}
	if err := db.Model(&models.StudyMaterial{}).Where("uploader_id = ?", userID).Count(&d.UserMaterials).Error; err != nil {
		return nil, fmt.Errorf("count user materials: %w", err)
	}

	top, err := s.ranker.TopUploaders(ctx, TopUsersLimit)
	if err != nil {
		return nil, err
	}
	d.TopUsers = top
	return d, nil
}

// Handler handles the dashboard request
type Handler struct {
	service *Service
}

// NewHandler creates a new dashboard handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the dashboard route on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/home/", h.Get)
}

// Get returns the dashboard
// @Summary Dashboard
// @Description Site totals, the caller's upload count and the top uploaders
// @Tags home
// @Produce json
// @Success 200 {object} Dashboard
// @Router /home/ [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	d, err := h.service.Dashboard(c.Request.Context(), userID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
