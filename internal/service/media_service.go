package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"momento/internal/featureflags"
	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/repository"
	"momento/internal/storage"
	"momento/internal/validation"

	"github.com/google/uuid"
)

const maxTitleLength = 300

// IngestInput is a validated upload request.
type IngestInput struct {
	OwnerID     uint
	FileName    string
	ContentType string
	MediaKind   models.MediaKind
	ByteSize    int64
	Title       string
	EventID     *uint
}

// IngestResult is what the client needs to upload the media directly.
type IngestResult struct {
	PostID      uint      `json:"postId"`
	StorageKey  string    `json:"storageKey"`
	UploadURL   string    `json:"uploadUrl"`
	UploadToken string    `json:"uploadToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Moderator is the part of the moderation gate the ingestion handler triggers.
type Moderator interface {
	ModerateAsync(ctx context.Context, ownerID, postID uint) <-chan error
}

// MediaService creates posts and serves their current state.
type MediaService struct {
	posts     repository.PostRepository
	objects   storage.ObjectStore
	limits    validation.Limits
	flags     *featureflags.Manager
	moderator Moderator
	newKey    func(ownerID uint, ext string) string
}

// NewMediaService wires the ingestion handler. moderator may be nil.
func NewMediaService(
	posts repository.PostRepository,
	objects storage.ObjectStore,
	limits validation.Limits,
	flags *featureflags.Manager,
	moderator Moderator,
) *MediaService {
	return &MediaService{
		posts:     posts,
		objects:   objects,
		limits:    limits,
		flags:     flags,
		moderator: moderator,
		newKey:    storageKey,
	}
}

func storageKey(ownerID uint, ext string) string {
	return fmt.Sprintf("media/%d/%s%s", ownerID, uuid.NewString(), ext)
}

// Ingest validates the upload, creates the post and issues an upload credential.
// Nothing is persisted when validation fails.
func (s *MediaService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if err := validation.ValidateUpload(validation.UploadDescriptor{
		FileName:    in.FileName,
		ContentType: in.ContentType,
		ByteSize:    in.ByteSize,
		MediaKind:   in.MediaKind,
	}, s.limits); err != nil {
		observability.UploadsRejected.WithLabelValues(string(in.MediaKind)).Inc()
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if tooLong(title, maxTitleLength) {
		observability.UploadsRejected.WithLabelValues(string(in.MediaKind)).Inc()
		return nil, models.NewValidationError(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if in.EventID != nil && *in.EventID == 0 {
		in.EventID = nil
	}

	contentType := validation.NormalizeContentType(in.ContentType)
	ext := strings.ToLower(filepath.Ext(in.FileName))

	post := &models.Post{
		OwnerID:          in.OwnerID,
		MediaKind:        in.MediaKind,
		MimeType:         contentType,
		ByteSize:         in.ByteSize,
		Title:            title,
		EventID:          in.EventID,
		ProcessingStatus: models.InitialProcessingStatus(in.MediaKind),
		ModerationStatus: models.ModerationPending,
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		post.ID = 0
		post.StorageKey = s.newKey(in.OwnerID, ext)
		if err = s.posts.Create(ctx, post); !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		slog.WarnContext(ctx, "storage key collision, regenerating", slog.String("storage_key", post.StorageKey))
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, models.NewConflictError("Could not allocate a storage key, retry the upload")
	}
	if err != nil {
		return nil, err
	}

	cred, err := s.objects.PresignUpload(ctx, post.StorageKey, contentType, in.ByteSize)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("presign upload: %w", err))
	}

	observability.PostsIngested.WithLabelValues(string(in.MediaKind)).Inc()
	slog.InfoContext(ctx, "post ingested",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("media_kind", string(post.MediaKind)),
		slog.String("processing_status", string(post.ProcessingStatus)),
	)

	if s.moderator != nil && s.flags.Enabled(featureflags.AutoModeration, in.OwnerID) {
		s.moderator.ModerateAsync(ctx, in.OwnerID, post.ID)
	}

	return &IngestResult{
		PostID:      post.ID,
		StorageKey:  post.StorageKey,
		UploadURL:   cred.URL,
		UploadToken: cred.Token,
		ExpiresAt:   cred.ExpiresAt,
	}, nil
}

// GetPost returns the post with renditions and counters when viewerID may see it.
func (s *MediaService) GetPost(ctx context.Context, viewerID, postID uint) (*MediaItem, error) {
	post, err := s.posts.GetDetailed(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.VisibleTo(viewerID) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	item := newMediaItem(post)
	if s.flags.Enabled(featureflags.SignedMediaURLs, viewerID) {
		signURLs(ctx, s.objects, item)
	}
	return item, nil
}
