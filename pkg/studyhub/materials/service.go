// Package materials handles uploading and listing study materials.
package materials

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/mikepea/studyhub/pkg/studyhub/profiles"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ScorePerUpload is added to the uploader's profile score for every material
const ScorePerUpload = 10

// MaxTitleLength is the longest accepted material title, in characters
const MaxTitleLength = 255

// UploadListener is notified after a material has been committed
type UploadListener interface {
	MaterialUploaded(ctx context.Context, material *models.StudyMaterial)
}

// UploadInput is a validated-on-upload material submission
type UploadInput struct {
	Title       string
	Description string
	FileName    string
	ContentType string
	File        io.Reader
}

// UploadRecord is one row of the "who uploaded" report
type UploadRecord struct {
	MaterialID uint      `json:"material_id"`
	Title      string    `json:"title"`
	File       string    `json:"file"`
	UploaderID uint      `json:"uploader_id"`
	Uploader   string    `json:"uploader"`
	UploadDate time.Time `json:"upload_date"`
}

// Service manages study materials
type Service struct {
	db        *gorm.DB
	blobs     storage.BlobStore
	listeners []UploadListener
}

// NewService creates a new material service
func NewService(db *gorm.DB, blobs storage.BlobStore, listeners ...UploadListener) *Service {
	return &Service{db: db, blobs: blobs, listeners: listeners}
}

// Upload stores the file, records the material and credits the uploader's score.
// The material row and the score change commit together; on failure the stored
// file is removed again.
func (s *Service) Upload(ctx context.Context, uploaderID uint, in UploadInput) (*models.StudyMaterial, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Invalid("title", "This field is required.")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperrors.Invalid("title", "Ensure this value has at most 255 characters.")
	}
	if in.File == nil || in.FileName == "" {
		return nil, apperrors.Invalid("file", "This field is required.")
	}

	key, size, err := s.blobs.Save(ctx, storage.DirMaterials, in.FileName, in.File)
	if err != nil {
		return nil, fmt.Errorf("store material file: %w", err)
	}
	if size == 0 {
		_ = s.blobs.Delete(ctx, key)
		return nil, apperrors.Invalid("file", "The submitted file is empty.")
	}

	material := models.StudyMaterial{
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		File:         key,
		OriginalName: in.FileName,
		ContentType:  in.ContentType,
		SizeBytes:    size,
		UploaderID:   uploaderID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&material).Error; err != nil {
			return fmt.Errorf("create material: %w", err)
		}

		profile, err := profiles.GetOrCreateTx(tx, uploaderID)
		if err != nil {
			return err
		}

		return tx.Model(&models.UserProfile{}).
			Where("id = ?", profile.ID).
			Update("score", gorm.Expr("score + ?", ScorePerUpload)).Error
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			zap.L().Warn("failed to remove orphaned upload", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Preload("Uploader").First(&material, material.ID).Error; err != nil {
		return nil, fmt.Errorf("reload material: %w", err)
	}

	zap.L().Info("material uploaded",
		zap.Uint("material_id", material.ID),
		zap.Uint("uploader_id", uploaderID),
		zap.Int64("size", size))

	for _, l := range s.listeners {
		l.MaterialUploaded(ctx, &material)
	}
	return &material, nil
}

// List returns every material, newest first, with its uploader
func (s *Service) List(ctx context.Context) ([]models.StudyMaterial, error) {
	var materials []models.StudyMaterial
	if err := s.db.WithContext(ctx).
		Preload("Uploader").
		Order("upload_date DESC, id DESC").
		Find(&materials).Error; err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return materials, nil
}

// WhoUploaded reports every material with its uploader's username, newest first
func (s *Service) WhoUploaded(ctx context.Context) ([]UploadRecord, error) {
	records := []UploadRecord{}
	err := s.db.WithContext(ctx).
		Table("study_materials").
		Select("study_materials.id AS material_id, study_materials.title, study_materials.file, " +
			"study_materials.uploader_id, users.username AS uploader, study_materials.upload_date").
		Joins("JOIN users ON users.id = study_materials.uploader_id").
		Order("study_materials.upload_date DESC, study_materials.id DESC").
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return records, nil
}
