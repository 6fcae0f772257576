package models

import "time"

// StudyGroup is a named set of users with one creator
type StudyGroup struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatorID   uint      `gorm:"not null;index" json:"creator_id"`

	// Relationships
	Creator      User               `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Members      []GroupMembership  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	JoinRequests []GroupJoinRequest `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
}
