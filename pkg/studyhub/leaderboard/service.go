// Package leaderboard ranks users by uploads and by profile score.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/studyhub/pkg/studyhub/cache"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const boardCacheKey = "leaderboard"

// Cache is the subset of the Redis cache the leaderboard uses
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// UserRank is a user with the number of materials they uploaded
type UserRank struct {
	UserID        uint   `json:"user_id"`
	Username      string `json:"username"`
	MaterialCount int64  `json:"material_count"`
}

// ProfileRank is a profile with its score
type ProfileRank struct {
	ProfileID uint   `json:"profile_id"`
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
}

// Board holds both rankings
type Board struct {
	Users    []UserRank    `json:"users"`
	Profiles []ProfileRank `json:"profiles"`
}

// Service computes rankings, optionally caching the full board
type Service struct {
	db    *gorm.DB
	cache Cache
	ttl   time.Duration
}

// NewService creates a leaderboard service. cache may be nil to disable caching.
func NewService(db *gorm.DB, c Cache, ttl time.Duration) *Service {
	return &Service{db: db, cache: c, ttl: ttl}
}

// Get returns both rankings
func (s *Service) Get(ctx context.Context) (*Board, error) {
	if s.cache != nil {
		var board Board
		err := s.cache.GetJSON(ctx, boardCacheKey, &board)
		if err == nil {
			return &board, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			zap.L().Warn("leaderboard cache read failed", zap.Error(err))
		}
	}

	users, err := s.TopUploaders(ctx, 0)
	if err != nil {
		return nil, err
	}
	profiles, err := s.TopScores(ctx, 0)
	if err != nil {
		return nil, err
	}
	board := &Board{Users: users, Profiles: profiles}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, boardCacheKey, board, s.ttl); err != nil {
			zap.L().Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return board, nil
}

// TopUploaders ranks every user by material count, including users with none.
// Ties are broken by username. A limit of 0 returns everyone.
func (s *Service) TopUploaders(ctx context.Context, limit int) ([]UserRank, error) {
	ranks := []UserRank{}
	q := s.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.id AS user_id, users.username, COUNT(study_materials.id) AS material_count").
		Joins("LEFT JOIN study_materials ON study_materials.uploader_id = users.id").
		Group("users.id, users.username").
		Order("material_count DESC, users.username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&ranks).Error; err != nil {
		return nil, fmt.Errorf("rank uploaders: %w", err)
	}
	return ranks, nil
}

// TopScores ranks profiles by score, ties broken by username. A limit of 0 returns everyone.
func (s *Service) TopScores(ctx context.Context, limit int) ([]ProfileRank, error) {
	ranks := []ProfileRank{}
	q := s.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Select("user_profiles.id AS profile_id, users.id AS user_id, users.username, user_profiles.score").
		Joins("JOIN users ON users.id = user_profiles.user_id").
		Order("user_profiles.score DESC, users.username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&ranks).Error; err != nil {
		return nil, fmt.Errorf("rank profiles: %w", err)
	}
	return ranks, nil
}

// MaterialUploaded drops the cached board so the next read sees the new counts
func (s *Service) MaterialUploaded(ctx context.Context, _ *models.StudyMaterial) {
	s.Invalidate(ctx)
}

// UserRegistered drops the cached board so the new user appears with zero uploads
func (s *Service) UserRegistered(ctx context.Context, _ *models.User) {
	s.Invalidate(ctx)
}

// ProfileCreated drops the cached board so the new profile is ranked
func (s *Service) ProfileCreated(ctx context.Context, _ *models.UserProfile) {
	s.Invalidate(ctx)
}

// UserDeleted drops the cached board so the removed user disappears
func (s *Service) UserDeleted(ctx context.Context, _ uint) {
	s.Invalidate(ctx)
}

// Invalidate drops the cached board
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, boardCacheKey); err != nil {
		zap.L().Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}
