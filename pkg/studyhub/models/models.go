package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: User must be migrated first as every other model references it
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&UserProfile{},
		&StudyMaterial{},
		&StudyGroup{},
		&GroupMembership{},
		&GroupJoinRequest{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
