package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"go.uber.org/zap"
)

// ProfileCreator sets up the application data for a newly registered user
type ProfileCreator interface {
	Create(ctx context.Context, userID uint) (*models.UserProfile, error)
}

// RegistrationListener is notified after a user has registered
type RegistrationListener interface {
	UserRegistered(ctx context.Context, user *models.User)
}

// Handler handles authentication requests
type Handler struct {
	identity  Identity
	sessions  *Sessions
	profiles  ProfileCreator
	listeners []RegistrationListener
}

// NewHandler creates a new auth handler
func NewHandler(identity Identity, sessions *Sessions, profiles ProfileCreator, listeners ...RegistrationListener) *Handler {
	return &Handler{identity: identity, sessions: sessions, profiles: profiles, listeners: listeners}
}

// RegisterRequest represents the registration form
type RegisterRequest struct {
	Username  string `json:"username" form:"username" binding:"required"`
	Password1 string `json:"password1" form:"password1" binding:"required"`
	Password2 string `json:"password2" form:"password2" binding:"required"`
}

// LoginRequest represents the login form
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	Next     string `json:"next" form:"next"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token    string       `json:"token"`
	User     UserResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	SystemRole string `json:"system_role"`
}

func newUserResponse(user *models.User) UserResponse {
	return UserResponse{ID: user.ID, Username: user.Username, SystemRole: string(user.SystemRole)}
}

// RegisterRoutes registers the public auth routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.LoginPage)
	rg.POST("/", h.Login)
	rg.POST("/register/", h.Register)
}

// RegisterSessionRoutes registers routes that need a session
func (h *Handler) RegisterSessionRoutes(rg *gin.RouterGroup) {
	rg.Match([]string{http.MethodGet, http.MethodPost}, "/logout/", h.Logout)
	rg.GET("/me/", h.Me)
}

// LoginPage reports whether the caller is logged in
// @Summary Login page
// @Description Redirects to the dashboard (or "next") when a session exists
// @Tags auth
// @Produce json
// @Param next query string false "Where to go after login"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Already logged in"
// @Router / [get]
func (h *Handler) LoginPage(c *gin.Context) {
	next := c.Query("next")
	if _, err := h.sessions.Current(c); err == nil {
		c.Redirect(http.StatusFound, safeNext(next))
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": false, "next": next})
}

// Login handles user login
// @Summary Login
// @Description Authenticate with username and password; sets the session cookie
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router / [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.Respond(c, apperrors.BindError(err))
		return
	}

	user, err := h.identity.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	token, err := h.sessions.Start(c, user)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token:    token,
		User:     newUserResponse(user),
		Redirect: safeNext(req.Next),
	})
}

// Register handles user registration
// @Summary Register a new user
// @Description Create an account and its profile, then start a session
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Router /register/ [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.Respond(c, apperrors.BindError(err))
		return
	}

	ctx := c.Request.Context()
	user, err := h.identity.Register(ctx, req.Username, req.Password1, req.Password2)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	if _, err := h.profiles.Create(ctx, user.ID); err != nil {
		// The profile is created lazily on first access if this fails
		zap.L().Error("failed to create profile for new user",
			zap.Uint("user_id", user.ID), zap.Error(err))
	}
	for _, l := range h.listeners {
		l.UserRegistered(ctx, user)
	}

	token, err := h.sessions.Start(c, user)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	zap.L().Info("user registered", zap.String("username", user.Username))
	c.JSON(http.StatusCreated, AuthResponse{
		Token:    token,
		User:     newUserResponse(user),
		Redirect: "/home/",
	})
}

// Logout ends the session and sends the user back to login
// @Summary Logout
// @Tags auth
// @Success 302 "Redirect to login"
// @Router /logout/ [get]
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.End(c)
	c.Redirect(http.StatusFound, LoginPath)
}

// Me returns the current user, or NotFound if the account was deleted
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "Account no longer exists"
// @Router /me/ [get]
func (h *Handler) Me(c *gin.Context) {
	username, _ := GetUsername(c)
	user, err := h.identity.Lookup(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.sessions.End(c)
		}
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
