package models

import "time"

// StudyMaterial is a shared file with metadata. The file itself lives in blob storage.
type StudyMaterial struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	File         string    `gorm:"not null" json:"file"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploaderID   uint      `gorm:"not null;index" json:"uploader_id"`
	UploadDate   time.Time `gorm:"autoCreateTime;index" json:"upload_date"`
	Views        int       `gorm:"not null;default:0" json:"views"`

	// Relationships
	Uploader User `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
}
