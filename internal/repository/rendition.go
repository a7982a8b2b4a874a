package repository

import (
	"context"
	"fmt"

	"momento/internal/models"
	"momento/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RenditionRepository records transcoder output.
type RenditionRepository interface {
	Record(ctx context.Context, renditions []models.Rendition) (int64, error)
	CountByPost(ctx context.Context, postID uint) (int64, error)
	ListByPosts(ctx context.Context, postIDs []uint) (map[uint][]models.Rendition, error)
	WithTx(tx *gorm.DB) RenditionRepository
}

type renditionRepository struct {
	db *gorm.DB
}

// NewRenditionRepository creates a new rendition repository
func NewRenditionRepository(db *gorm.DB) RenditionRepository {
	return &renditionRepository{db: db}
}

func (r *renditionRepository) WithTx(tx *gorm.DB) RenditionRepository {
	return &renditionRepository{db: tx}
}

// Record inserts renditions, skipping qualities the post already has, and
// returns how many rows were new.
func (r *renditionRepository) Record(ctx context.Context, renditions []models.Rendition) (int64, error) {
	if len(renditions) == 0 {
		return 0, nil
	}
	defer observability.TrackQuery("insert", "renditions")()

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "quality"}},
			DoNothing: true,
		}).
		Create(&renditions)
	if res.Error != nil {
		return 0, models.NewInternalError(fmt.Errorf("record renditions: %w", res.Error))
	}
	return res.RowsAffected, nil
}

func (r *renditionRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Rendition{}).
		Where("post_id = ?", postID).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *renditionRepository) ListByPosts(ctx context.Context, postIDs []uint) (map[uint][]models.Rendition, error) {
	out := make(map[uint][]models.Rendition, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []models.Rendition
	if err := r.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("post_id ASC, bitrate_kbps ASC").
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range rows {
		out[row.PostID] = append(out[row.PostID], row)
	}
	return out, nil
}
