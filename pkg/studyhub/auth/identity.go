package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Identity creates and verifies users. Handlers depend only on this interface.
type Identity interface {
	Register(ctx context.Context, username, password, confirm string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	Lookup(ctx context.Context, username string) (*models.User, error)
}

// Store is the database-backed Identity
type Store struct {
	db *gorm.DB
}

// NewStore creates a new identity store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ Identity = (*Store)(nil)

// Register validates and creates a regular user
func (s *Store) Register(ctx context.Context, username, password, confirm string) (*models.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(username, password, confirm); err != nil {
		return nil, err
	}

	// Check if username already exists; the unique index still settles races
	if _, err := s.Lookup(ctx, username); err == nil {
		return nil, apperrors.ErrUsernameTaken
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	return s.create(ctx, username, password, models.SystemRoleUser)
}

// Authenticate returns the user when the password matches
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.Lookup(ctx, username)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

// Lookup finds a user by username
func (s *Store) Lookup(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

// LookupID finds a user by ID
func (s *Store) LookupID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

// EnsureAdmin creates an admin user, or promotes an existing user of that name.
// Returns true when a new user was created.
func (s *Store) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	user, err := s.Lookup(ctx, username)
	switch {
	case err == nil:
		if user.IsAdmin() {
			return false, nil
		}
		if err := s.db.WithContext(ctx).Model(user).Update("system_role", models.SystemRoleAdmin).Error; err != nil {
			return false, fmt.Errorf("promote admin: %w", err)
		}
		zap.L().Info("promoted user to admin", zap.String("username", username))
		return false, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return false, err
	}

	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	if _, err := s.create(ctx, username, password, models.SystemRoleAdmin); err != nil {
		return false, err
	}
	zap.L().Info("created admin user", zap.String("username", username))
	return true, nil
}

func (s *Store) create(ctx context.Context, username, password string, role models.SystemRole) (*models.User, error) {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: hashedPassword,
		SystemRole:   role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}
