package models

import (
	"time"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// User is the identity record owned by the auth package.
// Users are hard-deleted so that foreign keys cascade to everything they own.
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	SystemRole   SystemRole `gorm:"type:varchar(20);default:'user'" json:"system_role"`

	// Relationships
	Profile           *UserProfile       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	UploadedMaterials []StudyMaterial    `gorm:"foreignKey:UploaderID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedGroups     []StudyGroup       `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE" json:"-"`
	GroupMemberships  []GroupMembership  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	GroupRequests     []GroupJoinRequest `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user has the admin system role
func (u User) IsAdmin() bool {
	return u.SystemRole == SystemRoleAdmin
}
