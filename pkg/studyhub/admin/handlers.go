package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserListener is notified after an admin deletes a user
type UserListener interface {
	UserDeleted(ctx context.Context, userID uint)
}

// Handler handles admin requests
type Handler struct {
	db        *gorm.DB
	listeners []UserListener
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, listeners ...UserListener) *Handler {
	return &Handler{db: db, listeners: listeners}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	SystemRole    string `json:"system_role"`
	CreatedAt     string `json:"created_at"`
	MaterialCount int64  `json:"material_count"`
	GroupCount    int64  `json:"group_count"`
	Score         int    `json:"score"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	SystemRole *string `json:"system_role"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	AdminUsers       int64 `json:"admin_users"`
	TotalProfiles    int64 `json:"total_profiles"`
	TotalMaterials   int64 `json:"total_materials"`
	TotalGroups      int64 `json:"total_groups"`
	TotalMemberships int64 `json:"total_memberships"`
	PendingRequests  int64 `json:"pending_requests"`
	ApprovedRequests int64 `json:"approved_requests"`
	RejectedRequests int64 `json:"rejected_requests"`
	TotalScore       int64 `json:"total_score"`
	TotalBytes       int64 `json:"total_bytes"`
}

// ProfileRow is one line of the profile listing
type ProfileRow struct {
	ID       uint   `json:"id"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Bio      string `json:"bio"`
}

// MaterialRow is one line of the material listing
type MaterialRow struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Uploader   string    `json:"uploader"`
	UploadDate time.Time `json:"upload_date"`
	Views      int       `json:"views"`
}

// GroupRow is one line of the group listing
type GroupRow struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestRow is one line of the join request listing
type RequestRow struct {
	ID        uint      `json:"id"`
	Username  string    `json:"user"`
	GroupName string    `json:"group"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
	rg.GET("/profiles", h.ListProfiles)
	rg.GET("/materials", h.ListMaterials)
	rg.GET("/groups", h.ListGroups)
	rg.GET("/requests", h.ListRequests)
}

// parseSince reads the optional "since" filter (YYYY-MM-DD)
func parseSince(c *gin.Context) (time.Time, bool) {
	since := c.Query("since")
	if since == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", since)
	if err != nil {
		apperrors.Respond(c, apperrors.Invalid("since", "Enter a valid date (YYYY-MM-DD)."))
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) userResponse(c *gin.Context, user models.User) (UserResponse, error) {
	db := h.db.WithContext(c.Request.Context())
	resp := UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := db.Model(&models.StudyMaterial{}).Where("uploader_id = ?", user.ID).Count(&resp.MaterialCount).Error; err != nil {
		return resp, fmt.Errorf("count materials: %w", err)
	}
	if err := db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&resp.GroupCount).Error; err != nil {
		return resp, fmt.Errorf("count memberships: %w", err)
	}
	if err := db.Model(&models.UserProfile{}).Where("user_id = ?", user.ID).Select("score").Scan(&resp.Score).Error; err != nil {
		return resp, fmt.Errorf("load score: %w", err)
	}
	return resp, nil
}

// ListUsers returns all users (admin only)
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Search by username"
// @Param role query string false "Filter by system role"
// @Success 200 {array} UserResponse
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.WithContext(c.Request.Context()).Order("created_at DESC, id DESC")

	// Optional search by username
	if search := c.Query("q"); search != "" {
		query = query.Where("username LIKE ?", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		resp, err := h.userResponse(c, user)
		if err != nil {
			apperrors.Respond(c, err)
			return
		}
		responses[i] = resp
	}

	c.JSON(http.StatusOK, responses)
}

func (h *Handler) loadUser(c *gin.Context) (*models.User, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return nil, false
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			apperrors.Respond(c, err)
		}
		return nil, false
	}
	return &user, true
}

// GetUser returns a single user by ID (admin only)
// @Summary Get a user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	h.respondUser(c, *user)
}

func (h *Handler) respondUser(c *gin.Context, user models.User) {
	resp, err := h.userResponse(c, user)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateUser changes a user's system role (admin only)
// @Summary Update a user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to update"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	if req.SystemRole != nil {
		role := models.SystemRole(*req.SystemRole)
		if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		if err := h.db.WithContext(c.Request.Context()).Model(user).Update("system_role", role).Error; err != nil {
			apperrors.Respond(c, err)
			return
		}
		user.SystemRole = role
	}

	h.respondUser(c, *user)
}

// DeleteUser hard-deletes a user; their profile, materials, groups and requests cascade (admin only)
// @Summary Delete a user
// @Tags admin
// @Param id path int true "User ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Cannot delete yourself"
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(user).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}

	for _, l := range h.listeners {
		l.UserDeleted(c.Request.Context(), user.ID)
	}

	zap.L().Info("user deleted by admin",
		zap.Uint("user_id", user.ID),
		zap.Uint("admin_id", currentUserID))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	db := h.db.WithContext(c.Request.Context())

	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&models.User{}), &stats.TotalUsers},
		{db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin), &stats.AdminUsers},
		{db.Model(&models.UserProfile{}), &stats.TotalProfiles},
		{db.Model(&models.StudyMaterial{}), &stats.TotalMaterials},
		{db.Model(&models.StudyGroup{}), &stats.TotalGroups},
		{db.Model(&models.GroupMembership{}), &stats.TotalMemberships},
		{db.Model(&models.GroupJoinRequest{}).Where("status = ?", models.JoinRequestPending), &stats.PendingRequests},
		{db.Model(&models.GroupJoinRequest{}).Where("status = ?", models.JoinRequestApproved), &stats.ApprovedRequests},
		{db.Model(&models.GroupJoinRequest{}).Where("status = ?", models.JoinRequestRejected), &stats.RejectedRequests},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dest).Error; err != nil {
			apperrors.Respond(c, fmt.Errorf("count stats: %w", err))
			return
		}
	}

	if err := db.Model(&models.UserProfile{}).Select("COALESCE(SUM(score), 0)").Scan(&stats.TotalScore).Error; err != nil {
		apperrors.Respond(c, fmt.Errorf("sum scores: %w", err))
		return
	}
	if err := db.Model(&models.StudyMaterial{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&stats.TotalBytes).Error; err != nil {
		apperrors.Respond(c, fmt.Errorf("sum sizes: %w", err))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListProfiles returns profiles, highest score first
// @Summary List profiles
// @Tags admin
// @Produce json
// @Param q query string false "Search by username"
// @Success 200 {array} ProfileRow
// @Router /admin/profiles [get]
func (h *Handler) ListProfiles(c *gin.Context) {
	rows := []ProfileRow{}
	query := h.db.WithContext(c.Request.Context()).
		Table("user_profiles").
		Select("user_profiles.id, user_profiles.user_id, users.username, user_profiles.score, user_profiles.bio").
		Joins("JOIN users ON users.id = user_profiles.user_id").
		Order("user_profiles.score DESC, users.username ASC")

	if search := c.Query("q"); search != "" {
		query = query.Where("users.username LIKE ?", "%"+search+"%")
	}

	if err := query.Scan(&rows).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ListMaterials returns materials, newest first
// @Summary List materials
// @Tags admin
// @Produce json
// @Param q query string false "Search by title or uploader"
// @Param since query string false "Uploaded on or after (YYYY-MM-DD)"
// @Success 200 {array} MaterialRow
// @Router /admin/materials [get]
func (h *Handler) ListMaterials(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}

	rows := []MaterialRow{}
	query := h.db.WithContext(c.Request.Context()).
		Table("study_materials").
		Select("study_materials.id, study_materials.title, users.username AS uploader, study_materials.upload_date, study_materials.views").
		Joins("JOIN users ON users.id = study_materials.uploader_id").
		Order("study_materials.upload_date DESC, study_materials.id DESC")

	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("study_materials.title LIKE ? OR users.username LIKE ?", like, like)
	}
	if !since.IsZero() {
		query = query.Where("study_materials.upload_date >= ?", since)
	}

	if err := query.Scan(&rows).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ListGroups returns groups, newest first
// @Summary List groups
// @Tags admin
// @Produce json
// @Param q query string false "Search by name or creator"
// @Param since query string false "Created on or after (YYYY-MM-DD)"
// @Success 200 {array} GroupRow
// @Router /admin/groups [get]
func (h *Handler) ListGroups(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}

	rows := []GroupRow{}
	query := h.db.WithContext(c.Request.Context()).
		Table("study_groups").
		Select("study_groups.id, study_groups.name, users.username AS creator, study_groups.created_at").
		Joins("JOIN users ON users.id = study_groups.creator_id").
		Order("study_groups.created_at DESC, study_groups.id DESC")

	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("study_groups.name LIKE ? OR users.username LIKE ?", like, like)
	}
	if !since.IsZero() {
		query = query.Where("study_groups.created_at >= ?", since)
	}

	if err := query.Scan(&rows).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ListRequests returns join requests, newest first
// @Summary List join requests
// @Tags admin
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param q query string false "Search by username or group name"
// @Param since query string false "Created on or after (YYYY-MM-DD)"
// @Success 200 {array} RequestRow
// @Failure 400 {object} map[string]string "Invalid status"
// @Router /admin/requests [get]
func (h *Handler) ListRequests(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}

	rows := []RequestRow{}
	query := h.db.WithContext(c.Request.Context()).
		Table("group_join_requests").
		Select("group_join_requests.id, users.username, study_groups.name AS group_name, group_join_requests.status, group_join_requests.created_at").
		Joins("JOIN users ON users.id = group_join_requests.user_id").
		Joins("JOIN study_groups ON study_groups.id = group_join_requests.group_id").
		Order("group_join_requests.created_at DESC, group_join_requests.id DESC")

	if status := c.Query("status"); status != "" {
		if !models.JoinRequestStatus(status).Valid() {
			apperrors.Respond(c, apperrors.Invalid("status", "Select a valid choice."))
			return
		}
		query = query.Where("group_join_requests.status = ?", status)
	}
	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("users.username LIKE ? OR study_groups.name LIKE ?", like, like)
	}
	if !since.IsZero() {
		query = query.Where("group_join_requests.created_at >= ?", since)
	}

	if err := query.Scan(&rows).Error; err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
