package materials

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
)

// Handler handles material requests
type Handler struct {
	service        *Service
	maxUploadBytes int64
}

// NewHandler creates a new material handler. maxUploadBytes caps the request body of an upload.
func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// UploadRequest is the non-file part of the upload form
type UploadRequest struct {
	Title       string `form:"title" binding:"required"`
	Description string `form:"description"`
}

// RegisterRoutes registers material routes on a session-protected group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/materials/", h.List)
	rg.POST("/materials/upload/", h.Upload)
	rg.GET("/who-uploaded/", h.WhoUploaded)
}

// List returns all materials
// @Summary List study materials
// @Description All materials, newest first
// @Tags materials
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /materials/ [get]
func (h *Handler) List(c *gin.Context) {
	materials, err := h.service.List(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"materials": materials})
}

// Upload stores a new material and credits the uploader
// @Summary Upload a study material
// @Tags materials
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param file formData file true "Material file"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Validation error"
// @Router /materials/upload/ [post]
func (h *Handler) Upload(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var req UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apperrors.Respond(c, apperrors.Invalid("file", "The submitted file is too large."))
			return
		}
		apperrors.Respond(c, apperrors.Invalid("title", "This field is required."))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		apperrors.Respond(c, apperrors.Invalid("file", "This field is required."))
		return
	}
	f, err := fh.Open()
	if err != nil {
		apperrors.Respond(c, apperrors.Invalid("file", "The submitted file could not be read."))
		return
	}
	defer f.Close()

	material, err := h.service.Upload(c.Request.Context(), userID, UploadInput{
		Title:       req.Title,
		Description: req.Description,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		File:        f,
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"material": material,
		"message":  "Material uploaded successfully!",
		"redirect": "/materials/",
	})
}

// WhoUploaded lists every material with its uploader
// @Summary Uploader report
// @Tags materials
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /who-uploaded/ [get]
func (h *Handler) WhoUploaded(c *gin.Context) {
	records, err := h.service.WhoUploaded(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"materials": records})
}
