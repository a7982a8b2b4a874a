package repository

import (
	"context"
	"fmt"
	"time"

	"momento/internal/models"
	"momento/internal/observability"

	"gorm.io/gorm"
)

// SocialRepository stores like, bookmark and follow edges. Add and Remove
// report whether the edge actually changed so callers can apply counter
// deltas exactly once.
type SocialRepository interface {
	AddLike(ctx context.Context, userID, postID uint) (bool, error)
	RemoveLike(ctx context.Context, userID, postID uint) (bool, error)
	AddBookmark(ctx context.Context, userID, postID uint) (bool, error)
	RemoveBookmark(ctx context.Context, userID, postID uint) (bool, error)
	AddFollow(ctx context.Context, followerID, followeeID uint) (bool, error)
	RemoveFollow(ctx context.Context, followerID, followeeID uint) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
	FollowCounts(ctx context.Context, userID uint) (followers int64, following int64, err error)
	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
	BookmarkedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
	FollowedUserIDs(ctx context.Context, followerID uint, userIDs []uint) ([]uint, error)
	WithTx(tx *gorm.DB) SocialRepository
}

type socialRepository struct {
	db *gorm.DB
}

// NewSocialRepository creates a new social graph repository
func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

func (r *socialRepository) WithTx(tx *gorm.DB) SocialRepository {
	return &socialRepository{db: tx}
}

// insertEdge runs INSERT ... ON CONFLICT DO NOTHING so concurrent duplicates
// resolve in the database instead of surfacing as errors.
func (r *socialRepository) insertEdge(ctx context.Context, table, subjectCol, objectCol string, subject, object uint) (bool, error) {
	defer observability.TrackQuery("insert", table)()

	sql := fmt.Sprintf(
		`INSERT INTO %s (%s, %s, created_at) VALUES (?, ?, ?) ON CONFLICT (%s, %s) DO NOTHING`,
		table, subjectCol, objectCol, subjectCol, objectCol,
	)
	res := r.db.WithContext(ctx).Exec(sql, subject, object, time.Now().UTC())
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("insert %s edge: %w", table, res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (r *socialRepository) deleteEdge(ctx context.Context, model interface{}, table, subjectCol, objectCol string, subject, object uint) (bool, error) {
	defer observability.TrackQuery("delete", table)()

	res := r.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ? AND %s = ?", subjectCol, objectCol), subject, object).
		Delete(model)
	if res.Error != nil {
		return false, models.NewInternalError(fmt.Errorf("delete %s edge: %w", table, res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (r *socialRepository) AddLike(ctx context.Context, userID, postID uint) (bool, error) {
	return r.insertEdge(ctx, "likes", "user_id", "post_id", userID, postID)
}

func (r *socialRepository) RemoveLike(ctx context.Context, userID, postID uint) (bool, error) {
	return r.deleteEdge(ctx, &models.Like{}, "likes", "user_id", "post_id", userID, postID)
}

func (r *socialRepository) AddBookmark(ctx context.Context, userID, postID uint) (bool, error) {
	return r.insertEdge(ctx, "bookmarks", "user_id", "post_id", userID, postID)
}

func (r *socialRepository) RemoveBookmark(ctx context.Context, userID, postID uint) (bool, error) {
	return r.deleteEdge(ctx, &models.Bookmark{}, "bookmarks", "user_id", "post_id", userID, postID)
}

func (r *socialRepository) AddFollow(ctx context.Context, followerID, followeeID uint) (bool, error) {
	return r.insertEdge(ctx, "follows", "follower_id", "followee_id", followerID, followeeID)
}

func (r *socialRepository) RemoveFollow(ctx context.Context, followerID, followeeID uint) (bool, error) {
	return r.deleteEdge(ctx, &models.Follow{}, "follows", "follower_id", "followee_id", followerID, followeeID)
}

func (r *socialRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *socialRepository) FollowCounts(ctx context.Context, userID uint) (int64, int64, error) {
	var followers, following int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Count(&followers).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&following).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	return followers, following, nil
}

func (r *socialRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	return r.pluckObjects(ctx, &models.Like{}, "user_id", "post_id", userID, postIDs)
}

func (r *socialRepository) BookmarkedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	return r.pluckObjects(ctx, &models.Bookmark{}, "user_id", "post_id", userID, postIDs)
}

func (r *socialRepository) FollowedUserIDs(ctx context.Context, followerID uint, userIDs []uint) ([]uint, error) {
	return r.pluckObjects(ctx, &models.Follow{}, "follower_id", "followee_id", followerID, userIDs)
}

func (r *socialRepository) pluckObjects(ctx context.Context, model interface{}, subjectCol, objectCol string, subject uint, objects []uint) ([]uint, error) {
	if len(objects) == 0 || subject == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(model).
		Where(fmt.Sprintf("%s = ? AND %s IN ?", subjectCol, objectCol), subject, objects).
		Pluck(objectCol, &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
