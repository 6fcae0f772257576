package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the key for username in gin context
	ContextKeyUsername = "username"
	// ContextKeySystemRole is the key for system role in gin context
	ContextKeySystemRole = "system_role"

	// LoginPath is where unauthenticated requests are sent
	LoginPath = "/"
)

// SessionOptions configures the session cookie
type SessionOptions struct {
	CookieName string
	Secure     bool
}

// Sessions issues and reads sessions carried in a cookie or a Bearer header
type Sessions struct {
	tokens *TokenManager
	opts   SessionOptions
}

// NewSessions creates a session layer on top of a token manager
func NewSessions(tokens *TokenManager, opts SessionOptions) *Sessions {
	if opts.CookieName == "" {
		opts.CookieName = "studyhub_session"
	}
	return &Sessions{tokens: tokens, opts: opts}
}

// Start issues a token for user and sets the session cookie. The token is returned
// so API clients can use it as a Bearer token.
func (s *Sessions) Start(c *gin.Context, user *models.User) (string, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.SystemRole))
	if err != nil {
		return "", err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, token, int(s.tokens.TTL().Seconds()), "/", "", s.opts.Secure, true)
	return token, nil
}

// End clears the session cookie
func (s *Sessions) End(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.opts.CookieName, "", -1, "/", "", s.opts.Secure, true)
}

// Current returns the claims of the request's session, if any.
// An Authorization header takes precedence over the cookie.
func (s *Sessions) Current(c *gin.Context) (*Claims, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return nil, ErrInvalidToken
		}
		return s.tokens.ValidateToken(parts[1])
	}

	token, err := c.Cookie(s.opts.CookieName)
	if err != nil || token == "" {
		return nil, ErrInvalidToken
	}
	return s.tokens.ValidateToken(token)
}

// Middleware requires a valid session. Requests without one are redirected to the
// login page with the original path in "next".
func (s *Sessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.Current(c)
		if err != nil {
			c.Redirect(http.StatusFound, LoginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}

		// Set user info in context
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeySystemRole, claims.SystemRole)

		c.Next()
	}
}

// UserLoader loads the stored user behind a session
type UserLoader interface {
	LookupID(ctx context.Context, id uint) (*models.User, error)
}

// RequireAdmin middleware checks the stored system role of the session user.
// The role claim in the token is not trusted, so a demotion takes effect at once.
func RequireAdmin(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := GetUserID(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		user, err := users.LookupID(c.Request.Context(), userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		if err != nil {
			apperrors.Respond(c, err)
			c.Abort()
			return
		}

		if !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Set(ContextKeySystemRole, string(user.SystemRole))
		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetUsername returns the username from the gin context
func GetUsername(c *gin.Context) (string, bool) {
	username, exists := c.Get(ContextKeyUsername)
	if !exists {
		return "", false
	}
	return username.(string), true
}

// GetSystemRole returns the system role from the gin context
func GetSystemRole(c *gin.Context) (string, bool) {
	role, exists := c.Get(ContextKeySystemRole)
	if !exists {
		return "", false
	}
	return role.(string), true
}

// safeNext only allows local redirect targets
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/home/"
	}
	return next
}
