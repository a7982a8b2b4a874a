package service

import (
	"context"
	"strconv"

	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/repository"

	"gorm.io/gorm"
)

// ToggleResult is the state of a like or bookmark edge after a toggle.
type ToggleResult struct {
	Active     bool  `json:"active"`
	Changed    bool  `json:"changed"`
	LikesCount int64 `json:"likesCount"`
}

// FollowResult is the state of a follow edge after a toggle.
type FollowResult struct {
	Following      bool  `json:"following"`
	Changed        bool  `json:"changed"`
	FollowerCount  int64 `json:"followerCount"`
	FollowingCount int64 `json:"followingCount"`
}

// SocialService owns like, bookmark and follow edges.
type SocialService struct {
	db         *gorm.DB
	posts      repository.PostRepository
	edges      repository.SocialRepository
	engagement *EngagementService
}

// NewSocialService wires the social graph gate.
func NewSocialService(db *gorm.DB, posts repository.PostRepository, edges repository.SocialRepository, engagement *EngagementService) *SocialService {
	return &SocialService{db: db, posts: posts, edges: edges, engagement: engagement}
}

// SetLike creates or removes the like edge. The likes counter moves only when
// the edge actually changed, in the same transaction.
func (s *SocialService) SetLike(ctx context.Context, userID, postID uint, like bool) (*ToggleResult, error) {
	if _, err := visiblePost(ctx, s.posts, userID, postID); err != nil {
		return nil, err
	}

	result := &ToggleResult{Active: like}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edges := s.edges.WithTx(tx)
		var err error
		if like {
			result.Changed, err = edges.AddLike(ctx, userID, postID)
		} else {
			result.Changed, err = edges.RemoveLike(ctx, userID, postID)
		}
		if err != nil || !result.Changed {
			return err
		}

		delta := int64(1)
		if !like {
			delta = -1
		}
		counters, err := s.engagement.ApplyTx(ctx, tx, postID, models.Delta{Likes: delta})
		if err != nil {
			return err
		}
		result.LikesCount = counters.LikesCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordEdge("like", like, result.Changed)

	if result.Changed {
		s.engagement.Invalidate(ctx, postID)
	} else {
		counters, err := s.engagement.counters.Get(ctx, postID)
		if err != nil {
			return nil, err
		}
		result.LikesCount = counters.LikesCount
	}
	return result, nil
}

// SetBookmark creates or removes the bookmark edge. Bookmarks never affect counters.
func (s *SocialService) SetBookmark(ctx context.Context, userID, postID uint, bookmark bool) (*ToggleResult, error) {
	if _, err := visiblePost(ctx, s.posts, userID, postID); err != nil {
		return nil, err
	}

	var (
		changed bool
		err     error
	)
	if bookmark {
		changed, err = s.edges.AddBookmark(ctx, userID, postID)
	} else {
		changed, err = s.edges.RemoveBookmark(ctx, userID, postID)
	}
	if err != nil {
		return nil, err
	}
	recordEdge("bookmark", bookmark, changed)
	return &ToggleResult{Active: bookmark, Changed: changed}, nil
}

// SetFollow creates or removes the follow edge from followerID to followeeID.
func (s *SocialService) SetFollow(ctx context.Context, followerID, followeeID uint, follow bool) (*FollowResult, error) {
	if followeeID == 0 {
		return nil, models.NewValidationError("targetUserId is required")
	}
	// Unfollowing yourself removes nothing and succeeds like any missing edge.
	if follow && followerID == followeeID {
		return nil, models.NewInvalidOperationError("You cannot follow yourself")
	}

	var (
		changed bool
		err     error
	)
	if follow {
		changed, err = s.edges.AddFollow(ctx, followerID, followeeID)
	} else {
		changed, err = s.edges.RemoveFollow(ctx, followerID, followeeID)
	}
	if err != nil {
		return nil, err
	}
	recordEdge("follow", follow, changed)

	followers, _, err := s.edges.FollowCounts(ctx, followeeID)
	if err != nil {
		return nil, err
	}
	_, following, err := s.edges.FollowCounts(ctx, followerID)
	if err != nil {
		return nil, err
	}
	return &FollowResult{
		Following:      follow,
		Changed:        changed,
		FollowerCount:  followers,
		FollowingCount: following,
	}, nil
}

func recordEdge(kind string, add, changed bool) {
	action := "add"
	if !add {
		action = "remove"
	}
	observability.EdgeMutations.WithLabelValues(kind, action, strconv.FormatBool(changed)).Inc()
}
