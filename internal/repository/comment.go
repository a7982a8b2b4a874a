package repository

import (
	"context"
	"fmt"

	"momento/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	GetIncludingDeleted(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, after *Cursor, limit int) ([]models.Comment, error)
	SoftDelete(ctx context.Context, id uint) (bool, error)
	WithTx(tx *gorm.DB) CommentRepository
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) WithTx(tx *gorm.DB) CommentRepository {
	return &commentRepository{db: tx}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(fmt.Errorf("create comment: %w", err))
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, notFoundOr(err, "Comment", id)
	}
	return &comment, nil
}

// GetIncludingDeleted also finds soft-deleted comments.
func (r *commentRepository) GetIncludingDeleted(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Unscoped().First(&comment, id).Error; err != nil {
		return nil, notFoundOr(err, "Comment", id)
	}
	return &comment, nil
}

// ListByPost returns up to limit comments, newest first, strictly after the cursor.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint, after *Cursor, limit int) ([]models.Comment, error) {
	q := r.db.WithContext(ctx).Where("post_id = ?", postID)
	if after != nil {
		q = q.Where("(created_at, id) < (?, ?)", after.CreatedAt, after.ID)
	}
	var comments []models.Comment
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&comments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

// SoftDelete marks the comment deleted and reports whether it was live before the call.
func (r *commentRepository) SoftDelete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("delete comment: %w", res.Error))
	}
	return res.RowsAffected == 1, nil
}
