package models

import "time"

// UserProfile extends a User one-to-one with the data this application owns.
type UserProfile struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Bio       string    `gorm:"type:text" json:"bio"`
	Score     int       `gorm:"not null;default:0" json:"score"`
	Avatar    string    `json:"avatar,omitempty"` // Blob reference, empty when unset

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
