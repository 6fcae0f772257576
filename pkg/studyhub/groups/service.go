// Package groups implements study groups and the join request workflow.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxNameLength is the longest accepted group name, in characters
const MaxNameLength = 255

// Service manages study groups and join requests
type Service struct {
	db *gorm.DB
}

// NewService creates a new group service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput holds a new group's fields
type CreateInput struct {
	Name        string
	Description string
}

// Listing is the groups page: every group plus the caller's own
type Listing struct {
	Groups   []models.StudyGroup `json:"groups"`
	MyGroups []models.StudyGroup `json:"user_groups"`
}

// Detail is a group page as seen by one user
type Detail struct {
	Group             models.StudyGroup         `json:"group"`
	IsMember          bool                      `json:"is_member"`
	IsCreator         bool                      `json:"is_creator"`
	HasPendingRequest bool                      `json:"has_pending_request"`
	PendingRequests   []models.GroupJoinRequest `json:"pending_requests"`
}

// Decision is the outcome of an approve or reject call. Applied is false when
// the caller was not the group's creator and nothing changed.
type Decision struct {
	Request *models.GroupJoinRequest
	Applied bool
}

// Create makes a new group with the creator as its first member
func (s *Service) Create(ctx context.Context, creatorID uint, in CreateInput) (*models.StudyGroup, error) {
	name := strings.TrimSpace(in.Name)
	description := strings.TrimSpace(in.Description)
	if name == "" {
		return nil, apperrors.Invalid("name", "This field is required.")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperrors.Invalid("name", "Ensure this value has at most 255 characters.")
	}
	if description == "" {
		return nil, apperrors.Invalid("description", "This field is required.")
	}

	group := models.StudyGroup{
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return addMember(tx, group.ID, creatorID)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("study group created",
		zap.Uint("group_id", group.ID),
		zap.Uint("creator_id", creatorID))
	return &group, nil
}

// List returns all groups and the groups userID belongs to, newest first
func (s *Service) List(ctx context.Context, userID uint) (*Listing, error) {
	db := s.db.WithContext(ctx)
	listing := &Listing{Groups: []models.StudyGroup{}, MyGroups: []models.StudyGroup{}}

	if err := db.Preload("Creator").
		Order("created_at DESC, id DESC").
		Find(&listing.Groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	if err := db.Preload("Creator").
		Joins("JOIN group_memberships ON group_memberships.group_id = study_groups.id").
		Where("group_memberships.user_id = ?", userID).
		Order("study_groups.created_at DESC, study_groups.id DESC").
		Find(&listing.MyGroups).Error; err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return listing, nil
}

// Detail loads a group with its members and the caller's relationship to it
func (s *Service) Detail(ctx context.Context, userID, groupID uint) (*Detail, error) {
	db := s.db.WithContext(ctx)

	var group models.StudyGroup
	err := db.Preload("Creator").
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Members.User").
		First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}

	detail := &Detail{
		Group:           group,
		IsCreator:       group.CreatorID == userID,
		PendingRequests: []models.GroupJoinRequest{},
	}
	for _, m := range group.Members {
		if m.UserID == userID {
			detail.IsMember = true
			break
		}
	}

	var pending int64
	if err := db.Model(&models.GroupJoinRequest{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, models.JoinRequestPending).
		Count(&pending).Error; err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	detail.HasPendingRequest = pending > 0

	if detail.IsCreator {
		if err := db.Preload("User").
			Where("group_id = ? AND status = ?", groupID, models.JoinRequestPending).
			Order("created_at DESC, id DESC").
			Find(&detail.PendingRequests).Error; err != nil {
			return nil, fmt.Errorf("list pending requests: %w", err)
		}
	}
	return detail, nil
}

// RequestJoin files a pending request for userID to join groupID. If a request
// already exists, in any status, it is returned unchanged with created false.
func (s *Service) RequestJoin(ctx context.Context, userID, groupID uint) (*models.GroupJoinRequest, bool, error) {
	db := s.db.WithContext(ctx)

	if err := db.Select("id").First(&models.StudyGroup{}, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.ErrNotFound
		}
		return nil, false, fmt.Errorf("load group: %w", err)
	}

	existing, err := findRequest(db, groupID, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load join request: %w", err)
	}

	req := models.GroupJoinRequest{
		GroupID: groupID,
		UserID:  userID,
		Status:  models.JoinRequestPending,
	}
	if err := db.Create(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent request for the same pair
			existing, err := findRequest(db, groupID, userID)
			if err != nil {
				return nil, false, fmt.Errorf("reload join request: %w", err)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create join request: %w", err)
	}

	zap.L().Info("join request created",
		zap.Uint("request_id", req.ID),
		zap.Uint("group_id", groupID),
		zap.Uint("user_id", userID))
	return &req, true, nil
}

// Approve marks the request approved and adds the requester to the group.
// Only the group's creator can approve; for anyone else nothing changes.
func (s *Service) Approve(ctx context.Context, userID, requestID uint) (*Decision, error) {
	var decision *Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := loadRequest(tx, requestID)
		if err != nil {
			return err
		}
		decision = &Decision{Request: req}
		if req.Group.CreatorID != userID {
			return nil
		}

		if err := tx.Model(req).Update("status", models.JoinRequestApproved).Error; err != nil {
			return fmt.Errorf("approve request: %w", err)
		}
		if err := addMember(tx, req.GroupID, req.UserID); err != nil {
			return err
		}
		req.Status = models.JoinRequestApproved
		decision.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	logDecision("join request approved", userID, decision)
	return decision, nil
}

// Reject marks the request rejected. Only the group's creator can reject; for
// anyone else nothing changes.
func (s *Service) Reject(ctx context.Context, userID, requestID uint) (*Decision, error) {
	db := s.db.WithContext(ctx)

	req, err := loadRequest(db, requestID)
	if err != nil {
		return nil, err
	}
	decision := &Decision{Request: req}
	if req.Group.CreatorID == userID {
		if err := db.Model(req).Update("status", models.JoinRequestRejected).Error; err != nil {
			return nil, fmt.Errorf("reject request: %w", err)
		}
		req.Status = models.JoinRequestRejected
		decision.Applied = true
	}

	logDecision("join request rejected", userID, decision)
	return decision, nil
}

func logDecision(msg string, userID uint, d *Decision) {
	if !d.Applied {
		zap.L().Debug("ignoring join request decision by non-creator",
			zap.Uint("request_id", d.Request.ID),
			zap.Uint("user_id", userID))
		return
	}
	zap.L().Info(msg,
		zap.Uint("request_id", d.Request.ID),
		zap.Uint("group_id", d.Request.GroupID),
		zap.Uint("requester_id", d.Request.UserID))
}

func findRequest(db *gorm.DB, groupID, userID uint) (*models.GroupJoinRequest, error) {
	var req models.GroupJoinRequest
	if err := db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func loadRequest(db *gorm.DB, requestID uint) (*models.GroupJoinRequest, error) {
	var req models.GroupJoinRequest
	err := db.Preload("Group").Preload("User").First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load join request: %w", err)
	}
	return &req, nil
}

// addMember inserts a membership, ignoring one that already exists
func addMember(tx *gorm.DB, groupID, userID uint) error {
	membership := models.GroupMembership{GroupID: groupID, UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership).Error; err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
