package database

import "momento/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: posts before the tables referencing them.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Post{},
		&models.Rendition{},
		&models.EngagementCounters{},
		&models.Like{},
		&models.Bookmark{},
		&models.Follow{},
		&models.ModerationQueueEntry{},
		&models.Comment{},
	}
}
