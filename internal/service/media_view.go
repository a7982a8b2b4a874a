package service

import (
	"context"
	"log/slog"

	"momento/internal/models"
	"momento/internal/storage"
)

// MediaItem is a post as returned to a viewer.
type MediaItem struct {
	*models.Post
	MediaURL      string            `json:"media_url,omitempty"`
	RenditionURLs map[string]string `json:"rendition_urls,omitempty"`
	IsLiked       bool              `json:"is_liked"`
	IsBookmarked  bool              `json:"is_bookmarked"`
	IsFollowing   *bool             `json:"is_following,omitempty"`
}

func newMediaItem(post *models.Post) *MediaItem {
	if post.Counters == nil {
		post.Counters = &models.EngagementCounters{PostID: post.ID}
	}
	if post.Renditions == nil {
		post.Renditions = []models.Rendition{}
	}
	return &MediaItem{Post: post}
}

// signURLs attaches time-limited download URLs for the original and every
// rendition. Signing failures leave the URL empty.
func signURLs(ctx context.Context, objects storage.ObjectStore, item *MediaItem) {
	if objects == nil || !item.ProcessingStatus.Visible() {
		return
	}
	u, err := objects.PresignDownload(ctx, item.StorageKey)
	if err != nil {
		slog.WarnContext(ctx, "failed to sign media url", slog.Uint64("post_id", uint64(item.ID)), slog.String("error", err.Error()))
		return
	}
	item.MediaURL = u

	if len(item.Renditions) == 0 {
		return
	}
	item.RenditionURLs = make(map[string]string, len(item.Renditions))
	for _, r := range item.Renditions {
		if u, err := objects.PresignDownload(ctx, r.StorageKey); err == nil {
			item.RenditionURLs[r.Quality] = u
		}
	}
}
