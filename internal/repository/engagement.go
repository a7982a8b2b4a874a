package repository

import (
	"context"
	"fmt"
	"time"

	"momento/internal/models"
	"momento/internal/observability"

	"gorm.io/gorm"
)

// EngagementRepository adjusts per-post engagement counters.
type EngagementRepository interface {
	Upsert(ctx context.Context, postID uint, delta models.Delta) (*models.EngagementCounters, error)
	SetScore(ctx context.Context, postID uint, score float64) error
	Get(ctx context.Context, postID uint) (*models.EngagementCounters, error)
	ListByPosts(ctx context.Context, postIDs []uint) (map[uint]models.EngagementCounters, error)
	WithTx(tx *gorm.DB) EngagementRepository
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

func (r *engagementRepository) WithTx(tx *gorm.DB) EngagementRepository {
	return &engagementRepository{db: tx}
}

// upsertCountersSQL creates the counters row or increments it in place. Each
// counter is clamped at zero so a stray decrement cannot go negative. The
// increments are bound separately from the insert values because the inserted
// row only carries the non-negative part of the delta.
const upsertCountersSQL = `
INSERT INTO engagement_counters (post_id, likes_count, comments_count, shares_count, views_count, score, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?)
ON CONFLICT (post_id) DO UPDATE SET
	likes_count = CASE WHEN engagement_counters.likes_count + ? < 0 THEN 0 ELSE engagement_counters.likes_count + ? END,
	comments_count = CASE WHEN engagement_counters.comments_count + ? < 0 THEN 0 ELSE engagement_counters.comments_count + ? END,
	shares_count = CASE WHEN engagement_counters.shares_count + ? < 0 THEN 0 ELSE engagement_counters.shares_count + ? END,
	views_count = CASE WHEN engagement_counters.views_count + ? < 0 THEN 0 ELSE engagement_counters.views_count + ? END,
	updated_at = ?
RETURNING post_id, likes_count, comments_count, shares_count, views_count, score`

// Upsert applies delta atomically and returns the counters after the change.
func (r *engagementRepository) Upsert(ctx context.Context, postID uint, delta models.Delta) (*models.EngagementCounters, error) {
	defer observability.TrackQuery("upsert", "engagement_counters")()

	now := time.Now().UTC()
	var counters models.EngagementCounters
	err := r.db.WithContext(ctx).Raw(upsertCountersSQL,
		postID, nonNegative(delta.Likes), nonNegative(delta.Comments), nonNegative(delta.Shares), nonNegative(delta.Views), now,
		delta.Likes, delta.Likes,
		delta.Comments, delta.Comments,
		delta.Shares, delta.Shares,
		delta.Views, delta.Views,
		now,
	).Scan(&counters).Error
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("upsert engagement counters: %w", err))
	}
	counters.UpdatedAt = now
	return &counters, nil
}

func (r *engagementRepository) SetScore(ctx context.Context, postID uint, score float64) error {
	err := r.db.WithContext(ctx).Model(&models.EngagementCounters{}).
		Where("post_id = ?", postID).
		Update("score", score).Error
	if err != nil {
		return models.NewInternalError(fmt.Errorf("update score: %w", err))
	}
	return nil
}

// Get returns the counters for postID, or a zero row when none exists yet.
func (r *engagementRepository) Get(ctx context.Context, postID uint) (*models.EngagementCounters, error) {
	var rows []models.EngagementCounters
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Limit(1).Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(rows) == 0 {
		return &models.EngagementCounters{PostID: postID}, nil
	}
	return &rows[0], nil
}

func (r *engagementRepository) ListByPosts(ctx context.Context, postIDs []uint) (map[uint]models.EngagementCounters, error) {
	out := make(map[uint]models.EngagementCounters, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []models.EngagementCounters
	if err := r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range rows {
		out[row.PostID] = row
	}
	return out, nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
