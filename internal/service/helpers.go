// Package service implements the media pipeline, engagement and feed business logic.
package service

import (
	"context"
	"unicode/utf8"

	"momento/internal/models"
	"momento/internal/repository"
)

// visiblePost loads postID and hides it behind NOT_FOUND unless viewerID may see it.
func visiblePost(ctx context.Context, posts repository.PostRepository, viewerID, postID uint) (*models.Post, error) {
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewerID) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

// ownedPost loads postID and requires ownerID to own it.
func ownedPost(ctx context.Context, posts repository.PostRepository, ownerID, postID uint) (*models.Post, error) {
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != ownerID {
		return nil, models.NewForbiddenError("Only the owner can do this")
	}
	return post, nil
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func signLabel(v int64) string {
	if v < 0 {
		return "negative"
	}
	return "positive"
}
