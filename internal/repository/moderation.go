package repository

import (
	"context"
	"fmt"

	"momento/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationRepository stores review queue entries for flagged posts.
type ModerationRepository interface {
	Enqueue(ctx context.Context, entry *models.ModerationQueueEntry) (bool, error)
	GetByPostID(ctx context.Context, postID uint) (*models.ModerationQueueEntry, error)
	ListOpen(ctx context.Context, limit int) ([]models.ModerationQueueEntry, error)
	WithTx(tx *gorm.DB) ModerationRepository
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new moderation queue repository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) WithTx(tx *gorm.DB) ModerationRepository {
	return &moderationRepository{db: tx}
}

// Enqueue inserts entry unless the post already has one; it reports whether a row was added.
func (r *moderationRepository) Enqueue(ctx context.Context, entry *models.ModerationQueueEntry) (bool, error) {
	if entry.Action == "" {
		entry.Action = models.ModerationActionOpen
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "post_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("enqueue moderation entry: %w", res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (r *moderationRepository) GetByPostID(ctx context.Context, postID uint) (*models.ModerationQueueEntry, error) {
	var entry models.ModerationQueueEntry
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&entry).Error; err != nil {
		return nil, notFoundOr(err, "ModerationQueueEntry", postID)
	}
	return &entry, nil
}

func (r *moderationRepository) ListOpen(ctx context.Context, limit int) ([]models.ModerationQueueEntry, error) {
	var entries []models.ModerationQueueEntry
	err := r.db.WithContext(ctx).
		Where("action = ?", models.ModerationActionOpen).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
