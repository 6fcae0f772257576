package profiles

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
)

// Handler handles profile requests
type Handler struct {
	service *Service
}

// NewHandler creates a new profile handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers profile routes on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile/", h.Get)
	rg.GET("/profile/:username/", h.Get)
	rg.POST("/profile/edit/", h.Edit)
}

// EditRequest is the profile edit form
type EditRequest struct {
	Bio *string `form:"bio" json:"bio"`
}

// Get shows a profile with the user's uploads
// @Summary View a profile
// @Description Without a username the current user's profile is shown
// @Tags profiles
// @Produce json
// @Param username path string false "Username"
// @Success 200 {object} View
// @Failure 404 {object} map[string]string "User not found"
// @Router /profile/{username}/ [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	view, err := h.service.View(c.Request.Context(), userID, c.Param("username"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Edit updates the current user's bio and avatar
// @Summary Edit profile
// @Tags profiles
// @Accept multipart/form-data
// @Produce json
// @Param bio formData string false "Bio"
// @Param avatar formData file false "Avatar image"
// @Success 200 {object} models.UserProfile
// @Failure 400 {object} map[string]string "Validation error"
// @Router /profile/edit/ [post]
func (h *Handler) Edit(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req EditRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.Respond(c, apperrors.BindError(err))
		return
	}

	in := UpdateInput{Bio: req.Bio}
	if fh, err := c.FormFile("avatar"); err == nil {
		f, err := fh.Open()
		if err != nil {
			apperrors.Respond(c, apperrors.Invalid("avatar", "The submitted file could not be read."))
			return
		}
		defer f.Close()
		in.Avatar = f
		in.AvatarName = fh.Filename
	}

	profile, err := h.service.Update(c.Request.Context(), userID, in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "message": "Profile updated successfully!"})
}
