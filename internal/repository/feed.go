package repository

import (
	"context"
	"fmt"
	"time"

	"momento/internal/models"
	"momento/internal/observability"

	"gorm.io/gorm"
)

// FeedType selects which posts a feed page draws from.
type FeedType string

const (
	FeedFollowing FeedType = "following"
	FeedDiscover  FeedType = "discover"
	FeedEvents    FeedType = "events"
	FeedMyPosts   FeedType = "my_posts"
)

// Valid reports whether t is a known feed type.
func (t FeedType) Valid() bool {
	switch t {
	case FeedFollowing, FeedDiscover, FeedEvents, FeedMyPosts:
		return true
	}
	return false
}

// Cursor is the position of the last item on a page. Score is only set for
// score-ordered feeds.
type Cursor struct {
	Score     *float64
	CreatedAt time.Time
	ID        uint
}

// FeedQuery describes one feed page request.
type FeedQuery struct {
	Type     FeedType
	ViewerID uint
	EventID  uint
	After    *Cursor
	Limit    int
}

// FeedRepository reads feed pages. It never writes.
type FeedRepository interface {
	Page(ctx context.Context, q FeedQuery) ([]models.Post, error)
}

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a feed repository, usually over the read replica.
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &feedRepository{db: db}
}

const visibleStatuses = "p.processing_status IN ? AND p.moderation_status = ?"

// Page returns up to q.Limit posts ordered for q.Type, strictly after q.After.
func (r *feedRepository) Page(ctx context.Context, q FeedQuery) ([]models.Post, error) {
	defer observability.TrackQuery("select", "feed_"+string(q.Type))()

	query := r.db.WithContext(ctx).
		Table("posts AS p").
		Select("p.*, COALESCE(ec.score, 0) AS score").
		Joins("LEFT JOIN engagement_counters AS ec ON ec.post_id = p.id")

	eligible := []models.ProcessingStatus{models.ProcessingReady, models.ProcessingCompleted}

	switch q.Type {
	case FeedFollowing:
		query = query.
			Where(visibleStatuses, eligible, models.ModerationApproved).
			Where("p.owner_id IN (?)", r.db.Table("follows").Select("followee_id").Where("follower_id = ?", q.ViewerID))
	case FeedDiscover:
		query = query.Where(visibleStatuses, eligible, models.ModerationApproved)
	case FeedEvents:
		query = query.
			Where(visibleStatuses, eligible, models.ModerationApproved).
			Where("p.event_id = ?", q.EventID)
	case FeedMyPosts:
		query = query.
			Where("p.owner_id = ?", q.ViewerID).
			Where("p.processing_status <> ?", models.ProcessingFailed)
	default:
		return nil, models.NewValidationError(fmt.Sprintf("unknown feed type %q", q.Type))
	}

	if q.Type == FeedDiscover {
		if q.After != nil {
			score := 0.0
			if q.After.Score != nil {
				score = *q.After.Score
			}
			query = query.Where("(COALESCE(ec.score, 0), p.created_at, p.id) < (?, ?, ?)", score, q.After.CreatedAt, q.After.ID)
		}
		query = query.Order("score DESC, p.created_at DESC, p.id DESC")
	} else {
		if q.After != nil {
			query = query.Where("(p.created_at, p.id) < (?, ?)", q.After.CreatedAt, q.After.ID)
		}
		query = query.Order("p.created_at DESC, p.id DESC")
	}

	var posts []models.Post
	if err := query.Limit(q.Limit).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(fmt.Errorf("load %s feed: %w", q.Type, err))
	}
	return posts, nil
}
