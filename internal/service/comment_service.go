package service

import (
	"context"
	"fmt"
	"strings"

	"momento/internal/models"
	"momento/internal/repository"

	"gorm.io/gorm"
)

const maxCommentLength = 2000

// CommentResult is a created comment with the post's new comment total.
type CommentResult struct {
	Comment       *models.Comment `json:"comment"`
	CommentsCount int64           `json:"commentsCount"`
}

// CommentPage is a page of comments, newest first.
type CommentPage struct {
	Items      []models.Comment `json:"items"`
	NextCursor *string          `json:"nextCursor"`
	HasMore    bool             `json:"hasMore"`
}

type CommentService struct {
	db         *gorm.DB
	posts      repository.PostRepository
	comments   repository.CommentRepository
	engagement *EngagementService
}

func NewCommentService(
	db *gorm.DB,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	engagement *EngagementService,
) *CommentService {
	return &CommentService{db: db, posts: posts, comments: comments, engagement: engagement}
}

// Create adds a comment and bumps the comments counter in the same transaction.
func (s *CommentService) Create(ctx context.Context, authorID, postID uint, body string) (*CommentResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, models.NewValidationError("body is required")
	}
	if tooLong(body, maxCommentLength) {
		return nil, models.NewValidationError(fmt.Sprintf("body must be at most %d characters", maxCommentLength))
	}
	if _, err := visiblePost(ctx, s.posts, authorID, postID); err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, AuthorID: authorID, Body: body}
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.comments.WithTx(tx).Create(ctx, comment); err != nil {
			return err
		}
		counters, err := s.engagement.ApplyTx(ctx, tx, postID, models.Delta{Comments: 1})
		if err != nil {
			return err
		}
		count = counters.CommentsCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engagement.Invalidate(ctx, postID)
	return &CommentResult{Comment: comment, CommentsCount: count}, nil
}

// Delete soft-deletes the author's comment. Deleting an already deleted comment
// succeeds without touching the counter.
func (s *CommentService) Delete(ctx context.Context, authorID, commentID uint) (int64, error) {
	comment, err := s.comments.GetIncludingDeleted(ctx, commentID)
	if err != nil {
		return 0, err
	}
	if comment.AuthorID != authorID {
		return 0, models.NewForbiddenError("Only the author can delete this comment")
	}

	var (
		count   int64
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err = s.comments.WithTx(tx).SoftDelete(ctx, commentID)
		if err != nil || !changed {
			return err
		}
		counters, err := s.engagement.ApplyTx(ctx, tx, comment.PostID, models.Delta{Comments: -1})
		if err != nil {
			return err
		}
		count = counters.CommentsCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !changed {
		counters, err := s.engagement.counters.Get(ctx, comment.PostID)
		if err != nil {
			return 0, err
		}
		return counters.CommentsCount, nil
	}
	s.engagement.Invalidate(ctx, comment.PostID)
	return count, nil
}

// List pages through a visible post's comments.
func (s *CommentService) List(ctx context.Context, viewerID, postID uint, cursor string, limit int) (*CommentPage, error) {
	if _, err := visiblePost(ctx, s.posts, viewerID, postID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	comments, err := s.comments.ListByPost(ctx, postID, after, limit+1)
	if err != nil {
		return nil, err
	}
	page := &CommentPage{Items: comments}
	if page.Items == nil {
		page.Items = []models.Comment{}
	}
	if len(comments) > limit {
		page.HasMore = true
		page.Items = comments[:limit]
		last := page.Items[limit-1]
		next := EncodeCursor(repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	return page, nil
}
