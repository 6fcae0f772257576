package storage

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler serves stored blobs
type Handler struct {
	store *LocalStorage
}

// NewHandler creates a new media handler
func NewHandler(store *LocalStorage) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the media route on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/media/*path", h.Serve)
}

// Serve streams a stored file
// @Summary Download a stored file
// @Tags media
// @Param path path string true "Storage key"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string "File not found"
// @Router /media/{path} [get]
func (h *Handler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	fullPath, err := h.store.Path(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	info, err := os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	c.File(fullPath)
}
