package models

import "time"

// JoinRequestStatus is the state of a GroupJoinRequest
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// Valid reports whether s is one of the known statuses
func (s JoinRequestStatus) Valid() bool {
	switch s {
	case JoinRequestPending, JoinRequestApproved, JoinRequestRejected:
		return true
	}
	return false
}

// GroupJoinRequest asks a group's creator to admit a user.
// At most one request exists per (group, user) pair, whatever its status.
type GroupJoinRequest struct {
	ID        uint              `gorm:"primarykey" json:"id"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	GroupID   uint              `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID    uint              `gorm:"not null;uniqueIndex:idx_group_user" json:"user_id"`
	Status    JoinRequestStatus `gorm:"type:varchar(10);not null;default:'pending'" json:"status"`

	// Relationships
	Group StudyGroup `gorm:"foreignKey:GroupID" json:"-"`
	User  User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
