// Package profiles manages the per-user profile: bio, avatar and contribution score.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreationListener is notified after a profile has been created
type CreationListener interface {
	ProfileCreated(ctx context.Context, profile *models.UserProfile)
}

// Service reads and updates user profiles
type Service struct {
	db        *gorm.DB
	blobs     storage.BlobStore
	listeners []CreationListener
}

// NewService creates a new profile service
func NewService(db *gorm.DB, blobs storage.BlobStore, listeners ...CreationListener) *Service {
	return &Service{db: db, blobs: blobs, listeners: listeners}
}

// View is a profile page: the profile with its user and their uploads
type View struct {
	Profile   models.UserProfile     `json:"profile"`
	Materials []models.StudyMaterial `json:"materials"`
	IsOwn     bool                   `json:"is_own"`
}

// UpdateInput holds profile edits. Nil/empty fields are left unchanged.
type UpdateInput struct {
	Bio        *string
	AvatarName string
	Avatar     io.Reader
}

// GetOrCreateTx returns the profile for userID, creating a default one if missing.
// It must be given the active transaction when called inside one.
func GetOrCreateTx(tx *gorm.DB, userID uint) (*models.UserProfile, error) {
	profile, _, err := getOrCreate(tx, userID)
	return profile, err
}

func getOrCreate(tx *gorm.DB, userID uint) (*models.UserProfile, bool, error) {
	var profile models.UserProfile
	err := tx.Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}

	profile = models.UserProfile{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return nil, false, apperrors.ErrNotFound
		}
		return nil, false, fmt.Errorf("create profile: %w", err)
	}

	// A concurrent request created it first
	if profile.ID == 0 {
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			return nil, false, fmt.Errorf("reload profile: %w", err)
		}
		return &profile, false, nil
	}
	return &profile, true, nil
}

// Create sets up the default profile of a newly registered user
func (s *Service) Create(ctx context.Context, userID uint) (*models.UserProfile, error) {
	return s.GetOrCreate(ctx, userID)
}

// GetOrCreate returns the profile for userID, creating a default one if missing
func (s *Service) GetOrCreate(ctx context.Context, userID uint) (*models.UserProfile, error) {
	profile, created, err := getOrCreate(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if created {
		s.notifyCreated(ctx, profile)
	}
	return profile, nil
}

func (s *Service) notifyCreated(ctx context.Context, profile *models.UserProfile) {
	for _, l := range s.listeners {
		l.ProfileCreated(ctx, profile)
	}
}

// View loads the profile page for username, or for the current user when username is empty
func (s *Service) View(ctx context.Context, currentUserID uint, username string) (*View, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	var err error
	if username == "" {
		err = db.First(&user, currentUserID).Error
	} else {
		err = db.Where("username = ?", username).First(&user).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	profile, err := s.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	profile.User = user

	var materials []models.StudyMaterial
	if err := db.Preload("Uploader").
		Where("uploader_id = ?", user.ID).
		Order("upload_date DESC, id DESC").
		Find(&materials).Error; err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	return &View{
		Profile:   *profile,
		Materials: materials,
		IsOwn:     user.ID == currentUserID,
	}, nil
}

// Update edits the bio and replaces the avatar of userID's profile
func (s *Service) Update(ctx context.Context, userID uint, in UpdateInput) (*models.UserProfile, error) {
	profile, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}

	var newAvatar string
	if in.Avatar != nil {
		newAvatar, _, err = s.blobs.Save(ctx, storage.DirAvatars, in.AvatarName, in.Avatar)
		if err != nil {
			return nil, fmt.Errorf("store avatar: %w", err)
		}
		updates["avatar"] = newAvatar
	}

	if len(updates) == 0 {
		return profile, nil
	}

	oldAvatar := profile.Avatar
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		if newAvatar != "" {
			_ = s.blobs.Delete(ctx, newAvatar)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if bio, ok := updates["bio"].(string); ok {
		profile.Bio = bio
	}
	if newAvatar != "" {
		profile.Avatar = newAvatar
	}

	if newAvatar != "" && oldAvatar != "" {
		if err := s.blobs.Delete(ctx, oldAvatar); err != nil {
			zap.L().Warn("failed to remove replaced avatar", zap.String("key", oldAvatar), zap.Error(err))
		}
	}
	return profile, nil
}
