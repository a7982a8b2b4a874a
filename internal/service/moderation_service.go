package service

import (
	"context"
	"log/slog"

	"momento/internal/cache"
	"momento/internal/models"
	"momento/internal/moderation"
	"momento/internal/observability"
	"momento/internal/repository"
	"momento/internal/resilience"
	"momento/internal/storage"

	"gorm.io/gorm"
)

// ModerationResult is the outcome of a moderation request.
type ModerationResult struct {
	PostID           uint                    `json:"postId"`
	ModerationStatus models.ModerationStatus `json:"moderationStatus"`
	Verdict          *models.Verdict         `json:"verdict"`
}

// ModerationService runs posts through the classifier and records the verdict.
type ModerationService struct {
	db         *gorm.DB
	posts      repository.PostRepository
	queue      repository.ModerationRepository
	classifier moderation.Classifier
	objects    storage.ObjectStore
	cache      *cache.Store
}

// NewModerationService returns a new ModerationService. objects may be nil, in
// which case the classifier gets no media URL.
func NewModerationService(
	db *gorm.DB,
	posts repository.PostRepository,
	queue repository.ModerationRepository,
	classifier moderation.Classifier,
	objects storage.ObjectStore,
	store *cache.Store,
) *ModerationService {
	return &ModerationService{
		db:         db,
		posts:      posts,
		queue:      queue,
		classifier: classifier,
		objects:    objects,
		cache:      store,
	}
}

// Moderate classifies the owner's post. A post that already has a verdict is
// returned as-is without calling the classifier. Classifier failures leave the
// post pending and surface as UPSTREAM_UNAVAILABLE.
func (s *ModerationService) Moderate(ctx context.Context, ownerID, postID uint) (*ModerationResult, error) {
	ctx, span := observability.StartSpan(ctx, "moderation", "moderate", observability.PostAttr(postID))
	result, err := s.moderate(ctx, ownerID, postID)
	observability.EndSpan(span, err)
	return result, err
}

func (s *ModerationService) moderate(ctx context.Context, ownerID, postID uint) (*ModerationResult, error) {
	post, err := ownedPost(ctx, s.posts, ownerID, postID)
	if err != nil {
		return nil, err
	}
	if post.ModerationStatus != models.ModerationPending {
		return &ModerationResult{PostID: post.ID, ModerationStatus: post.ModerationStatus}, nil
	}

	req := moderation.Request{
		PostID:     post.ID,
		OwnerID:    post.OwnerID,
		Title:      post.Title,
		MediaKind:  post.MediaKind,
		MimeType:   post.MimeType,
		StorageKey: post.StorageKey,
	}
	if s.objects != nil {
		if u, err := s.objects.PresignDownload(ctx, post.StorageKey); err == nil {
			req.MediaURL = u
		}
	}

	verdict, err := s.classifier.Classify(ctx, req)
	if err != nil {
		outcome := "error"
		if resilience.IsRejected(err) {
			outcome = "rejected"
		}
		observability.ModerationVerdicts.WithLabelValues(outcome).Inc()
		slog.WarnContext(ctx, "moderation classifier failed; post stays pending",
			slog.Uint64("post_id", uint64(post.ID)),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, models.NewUpstreamUnavailableError("moderation classifier", err)
	}

	if verdict.IsSafe {
		if _, err := s.posts.TransitionModeration(ctx, post.ID, models.ModerationApproved); err != nil {
			return nil, err
		}
		observability.ModerationVerdicts.WithLabelValues("approved").Inc()
		return &ModerationResult{PostID: post.ID, ModerationStatus: models.ModerationApproved, Verdict: &verdict}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.posts.WithTx(tx).TransitionModeration(ctx, post.ID, models.ModerationFlagged); err != nil {
			return err
		}
		_, err := s.queue.WithTx(tx).Enqueue(ctx, &models.ModerationQueueEntry{
			PostID:        post.ID,
			Reason:        verdict.Reason,
			ViolationType: verdict.ViolationType,
			Confidence:    verdict.Confidence,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidatePost(ctx, post.ID)
	observability.ModerationVerdicts.WithLabelValues("flagged").Inc()
	return &ModerationResult{PostID: post.ID, ModerationStatus: models.ModerationFlagged, Verdict: &verdict}, nil
}

// ModerateAsync runs Moderate in the background, detached from the request.
func (s *ModerationService) ModerateAsync(ctx context.Context, ownerID, postID uint) <-chan error {
	done := make(chan error, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		op := observability.StartAsync(bg, slog.Default(), "moderation.auto", slog.Uint64("post_id", uint64(postID)))
		_, err := s.Moderate(bg, ownerID, postID)
		op.Finish(bg, err)
		done <- err
	}()
	return done
}
