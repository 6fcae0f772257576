package groups

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
)

// Handler handles study group requests
type Handler struct {
	service *Service
}

// NewHandler creates a new group handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateGroupRequest represents the group creation form
type CreateGroupRequest struct {
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
}

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// DecisionResponse is returned by the join, approve and reject endpoints
type DecisionResponse struct {
	GroupID  uint                     `json:"group_id"`
	Request  *models.GroupJoinRequest `json:"request"`
	Message  string                   `json:"message,omitempty"`
	Redirect string                   `json:"redirect"`
}

// RegisterRoutes registers group routes on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/", h.List)
	rg.POST("/groups/create/", h.Create)
	rg.GET("/groups/:id/", h.Get)
	rg.GET("/groups/:id/members/", h.ListMembers)
	rg.Match([]string{http.MethodGet, http.MethodPost}, "/groups/:id/join/", h.Join)
}

// RegisterRequestRoutes registers join request decision routes
func (h *Handler) RegisterRequestRoutes(rg *gin.RouterGroup) {
	rg.Match([]string{http.MethodGet, http.MethodPost}, "/requests/:id/approve/", h.Approve)
	rg.Match([]string{http.MethodGet, http.MethodPost}, "/requests/:id/reject/", h.Reject)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.Respond(c, apperrors.ErrNotFound)
		return 0, false
	}
	return uint(id), true
}

func groupPath(groupID uint) string {
	return fmt.Sprintf("/groups/%d/", groupID)
}

// List returns all groups and the user's groups
// @Summary List study groups
// @Tags groups
// @Produce json
// @Success 200 {object} Listing
// @Router /groups/ [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	listing, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Create creates a new study group
// @Summary Create a study group
// @Description The creator becomes the first member
// @Tags groups
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Validation error"
// @Router /groups/create/ [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.Respond(c, apperrors.BindError(err))
		return
	}

	group, err := h.service.Create(c.Request.Context(), userID, CreateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"group":    group,
		"message":  "Study group created successfully!",
		"redirect": "/groups/",
	})
}

// Get returns a group's detail page
// @Summary Get a study group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} Detail
// @Failure 404 {object} map[string]string "Group not found"
// @Router /groups/{id}/ [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := h.service.Detail(c.Request.Context(), userID, groupID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListMembers returns the members of a group
// @Summary List group members
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} MemberResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Router /groups/{id}/members/ [get]
func (h *Handler) ListMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := h.service.Detail(c.Request.Context(), userID, groupID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	members := make([]MemberResponse, len(detail.Group.Members))
	for i, m := range detail.Group.Members {
		members[i] = MemberResponse{ID: m.User.ID, Username: m.User.Username}
	}
	c.JSON(http.StatusOK, members)
}

// Join asks to join a group
// @Summary Request to join a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} DecisionResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Router /groups/{id}/join/ [post]
func (h *Handler) Join(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c)
	if !ok {
		return
	}

	req, created, err := h.service.RequestJoin(c.Request.Context(), userID, groupID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	message := "You already have a pending request."
	if created {
		message = "Join request sent!"
	}
	c.JSON(http.StatusOK, DecisionResponse{
		GroupID:  groupID,
		Request:  req,
		Message:  message,
		Redirect: groupPath(groupID),
	})
}

// Approve approves a join request
// @Summary Approve a join request
// @Description Only the group creator can approve; for anyone else this is a no-op
// @Tags groups
// @Produce json
// @Param id path int true "Join request ID"
// @Success 200 {object} DecisionResponse
// @Failure 404 {object} map[string]string "Request not found"
// @Router /requests/{id}/approve/ [post]
func (h *Handler) Approve(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	requestID, ok := parseID(c)
	if !ok {
		return
	}

	decision, err := h.service.Approve(c.Request.Context(), userID, requestID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var message string
	if decision.Applied {
		message = decision.Request.User.Username + " has been added to the group!"
	}
	c.JSON(http.StatusOK, decisionResponse(decision, message))
}

// Reject rejects a join request
// @Summary Reject a join request
// @Description Only the group creator can reject; for anyone else this is a no-op
// @Tags groups
// @Produce json
// @Param id path int true "Join request ID"
// @Success 200 {object} DecisionResponse
// @Failure 404 {object} map[string]string "Request not found"
// @Router /requests/{id}/reject/ [post]
func (h *Handler) Reject(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	requestID, ok := parseID(c)
	if !ok {
		return
	}

	decision, err := h.service.Reject(c.Request.Context(), userID, requestID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var message string
	if decision.Applied {
		message = "Request rejected."
	}
	c.JSON(http.StatusOK, decisionResponse(decision, message))
}

func decisionResponse(d *Decision, message string) DecisionResponse {
	return DecisionResponse{
		GroupID:  d.Request.GroupID,
		Request:  d.Request,
		Message:  message,
		Redirect: groupPath(d.Request.GroupID),
	}
}
