package repository

import (
	"context"
	"fmt"
	"time"

	"momento/internal/cache"
	"momento/internal/models"
	"momento/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations and owns the
// post lifecycle transitions.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetDetailed(ctx context.Context, id uint) (*models.Post, error)
	TransitionProcessing(ctx context.Context, id uint, to models.ProcessingStatus, reason string) (bool, error)
	TransitionModeration(ctx context.Context, id uint, to models.ModerationStatus) (bool, error)
	WithTx(tx *gorm.DB) PostRepository
}

// postRepository implements PostRepository
type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewPostRepository creates a new post repository. store may be nil.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store}
}

func (r *postRepository) WithTx(tx *gorm.DB) PostRepository {
	return &postRepository{db: tx, cache: r.cache}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

// GetDetailed returns the post with renditions and counters, served from the
// post snapshot cache when possible.
func (r *postRepository) GetDetailed(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		return r.db.WithContext(ctx).
			Preload("Renditions", func(db *gorm.DB) *gorm.DB { return db.Order("bitrate_kbps ASC") }).
			Preload("Counters").
			First(&post, id).Error
	})
	if err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

// TransitionProcessing moves the post to `to` with a compare-and-set update.
// It returns false with no error when the post is already in `to`, and an
// INVALID_TRANSITION error when the current state does not allow the move.
func (r *postRepository) TransitionProcessing(ctx context.Context, id uint, to models.ProcessingStatus, reason string) (bool, error) {
	post, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	from := post.ProcessingStatus
	if from == to {
		return false, nil
	}
	if !models.CanTransitionProcessing(from, to) {
		return false, models.NewInvalidTransitionError("processing_status", string(from), string(to))
	}

	updates := map[string]interface{}{
		"processing_status": to,
		"updated_at":        time.Now().UTC(),
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}

	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND processing_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("transition processing status: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return r.resolveLostRace(ctx, id, func(p *models.Post) (bool, string) {
			return p.ProcessingStatus == to, string(p.ProcessingStatus)
		}, "processing_status", string(to))
	}

	observability.LifecycleTransitions.WithLabelValues("processing_status", string(to)).Inc()
	r.cache.InvalidatePost(ctx, id)
	return true, nil
}

// TransitionModeration is the moderation_status counterpart of TransitionProcessing.
func (r *postRepository) TransitionModeration(ctx context.Context, id uint, to models.ModerationStatus) (bool, error) {
	post, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	from := post.ModerationStatus
	if from == to {
		return false, nil
	}
	if !models.CanTransitionModeration(from, to) {
		return false, models.NewInvalidTransitionError("moderation_status", string(from), string(to))
	}

	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND moderation_status = ?", id, from).
		Updates(map[string]interface{}{
			"moderation_status": to,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("transition moderation status: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return r.resolveLostRace(ctx, id, func(p *models.Post) (bool, string) {
			return p.ModerationStatus == to, string(p.ModerationStatus)
		}, "moderation_status", string(to))
	}

	observability.LifecycleTransitions.WithLabelValues("moderation_status", string(to)).Inc()
	r.cache.InvalidatePost(ctx, id)
	return true, nil
}

// resolveLostRace re-reads a post after a compare-and-set matched no rows.
// Another writer reaching the same target is a no-op success.
func (r *postRepository) resolveLostRace(ctx context.Context, id uint, reached func(*models.Post) (bool, string), field, to string) (bool, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	ok, state := reached(current)
	if ok {
		return false, nil
	}
	return false, models.NewInvalidTransitionError(field, state, to)
}
