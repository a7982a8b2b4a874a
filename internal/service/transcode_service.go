package service

import (
	"context"
	"fmt"
	"log/slog"

	"momento/internal/cache"
	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/repository"
	"momento/internal/resilience"
	"momento/internal/storage"
	"momento/internal/transcode"
	"momento/internal/validation"

	"gorm.io/gorm"
)

// StartTranscodeInput is the upload-complete signal for a video post.
type StartTranscodeInput struct {
	PostID     uint
	StorageKey string
	MediaKind  models.MediaKind
}

// TranscodeResult reports how many renditions were dispatched or recorded.
type TranscodeResult struct {
	Success          bool                    `json:"success"`
	RenditionCount   int                     `json:"renditionCount"`
	ProcessingStatus models.ProcessingStatus `json:"processingStatus"`
}

// CallbackResult is returned to a transcoder after it reports.
type CallbackResult struct {
	PostID           uint                    `json:"postId"`
	ProcessingStatus models.ProcessingStatus `json:"processingStatus"`
	RenditionCount   int64                   `json:"renditionCount"`
}

// TranscodeService coordinates transcoding for video and reel posts.
type TranscodeService struct {
	db          *gorm.DB
	posts       repository.PostRepository
	renditions  repository.RenditionRepository
	transcoder  transcode.Transcoder
	objects     storage.ObjectStore
	tokens      *transcode.CallbackTokens
	ladder      transcode.Ladder
	callbackURL string
	cache       *cache.Store
}

// TranscodeOptions carries the static settings of the coordinator.
type TranscodeOptions struct {
	Ladder      transcode.Ladder
	CallbackURL string
	Tokens      *transcode.CallbackTokens
}

// NewTranscodeService wires the transcoding coordinator. objects may be nil.
func NewTranscodeService(
	db *gorm.DB,
	posts repository.PostRepository,
	renditions repository.RenditionRepository,
	transcoder transcode.Transcoder,
	objects storage.ObjectStore,
	store *cache.Store,
	opts TranscodeOptions,
) *TranscodeService {
	return &TranscodeService{
		db:          db,
		posts:       posts,
		renditions:  renditions,
		transcoder:  transcoder,
		objects:     objects,
		tokens:      opts.Tokens,
		ladder:      opts.Ladder,
		callbackURL: opts.CallbackURL,
		cache:       store,
	}
}

// StartTranscode moves an uploaded video to processing and dispatches one job
// covering the whole ladder. Repeating the call on a processing or completed
// post does not dispatch again.
func (s *TranscodeService) StartTranscode(ctx context.Context, ownerID uint, in StartTranscodeInput) (*TranscodeResult, error) {
	ctx, span := observability.StartSpan(ctx, "transcode", "start", observability.PostAttr(in.PostID))
	result, err := s.startTranscode(ctx, ownerID, in)
	observability.EndSpan(span, err)
	return result, err
}

func (s *TranscodeService) startTranscode(ctx context.Context, ownerID uint, in StartTranscodeInput) (*TranscodeResult, error) {
	post, err := ownedPost(ctx, s.posts, ownerID, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.StorageKey != in.StorageKey {
		return nil, models.NewValidationError("storageKey does not match the post")
	}
	if post.MediaKind != in.MediaKind {
		return nil, models.NewValidationError("mediaKind does not match the post")
	}
	if !post.MediaKind.NeedsTranscoding() {
		return nil, models.NewValidationError("photos are not transcoded")
	}

	switch post.ProcessingStatus {
	case models.ProcessingProcessing:
		return s.dispatched(models.ProcessingProcessing), nil
	case models.ProcessingCompleted:
		count, err := s.renditions.CountByPost(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		return &TranscodeResult{Success: true, RenditionCount: int(count), ProcessingStatus: models.ProcessingCompleted}, nil
	case models.ProcessingUploading:
	default:
		return nil, models.NewInvalidTransitionError("processing_status", string(post.ProcessingStatus), string(models.ProcessingProcessing))
	}

	changed, err := s.posts.TransitionProcessing(ctx, post.ID, models.ProcessingProcessing, "")
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent call won the transition and owns the dispatch.
		return s.dispatched(models.ProcessingProcessing), nil
	}

	job, err := s.buildJob(ctx, post)
	if err == nil {
		err = s.transcoder.Dispatch(ctx, job)
	}
	if err != nil {
		observability.TranscodeJobs.WithLabelValues("dispatch_failed").Inc()
		reason := "transcoder dispatch failed"
		if resilience.IsRejected(err) {
			reason = "transcoder circuit open"
		}
		if _, ferr := s.posts.TransitionProcessing(ctx, post.ID, models.ProcessingFailed, reason); ferr != nil {
			slog.ErrorContext(ctx, "failed to mark post failed after dispatch error",
				slog.Uint64("post_id", uint64(post.ID)),
				slog.String("error", ferr.Error()),
			)
		}
		return nil, models.NewUpstreamUnavailableError("transcoder", err)
	}

	observability.TranscodeJobs.WithLabelValues("dispatched").Inc()
	return s.dispatched(models.ProcessingProcessing), nil
}

func (s *TranscodeService) dispatched(status models.ProcessingStatus) *TranscodeResult {
	return &TranscodeResult{Success: true, RenditionCount: len(s.ladder), ProcessingStatus: status}
}

func (s *TranscodeService) buildJob(ctx context.Context, post *models.Post) (transcode.Job, error) {
	token, err := s.tokens.Issue(post.ID)
	if err != nil {
		return transcode.Job{}, err
	}
	job := transcode.Job{
		PostID:        post.ID,
		SourceKey:     post.StorageKey,
		MimeType:      post.MimeType,
		Targets:       s.ladder.Targets(post.StorageKey),
		CallbackURL:   s.callbackURL,
		CallbackToken: token,
	}
	if s.objects != nil {
		if u, err := s.objects.PresignDownload(ctx, post.StorageKey); err == nil {
			job.SourceURL = u
		}
	}
	return job, nil
}

// HandleCallback records a transcoder report authenticated by its job token.
func (s *TranscodeService) HandleCallback(ctx context.Context, token string, report transcode.Report) (*CallbackResult, error) {
	postID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid callback token")
	}
	if postID != report.PostID {
		return nil, models.NewUnauthorizedError("Callback token does not match the post")
	}
	if err := validation.Struct(report); err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, report.PostID)
	if err != nil {
		return nil, err
	}
	if !post.MediaKind.NeedsTranscoding() {
		return nil, models.NewValidationError("photos are not transcoded")
	}

	rows, err := s.plannedRenditions(post, report.Renditions)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.posts.WithTx(tx)
		switch report.Status {
		case transcode.StatusCompleted:
			if _, err := posts.TransitionProcessing(ctx, post.ID, models.ProcessingCompleted, ""); err != nil {
				return err
			}
		case transcode.StatusFailed:
			reason := report.Error
			if reason == "" {
				reason = "transcoding failed"
			}
			if _, err := posts.TransitionProcessing(ctx, post.ID, models.ProcessingFailed, reason); err != nil {
				return err
			}
		default:
			if post.ProcessingStatus != models.ProcessingProcessing {
				return models.NewInvalidTransitionError("processing_status", string(post.ProcessingStatus), string(models.ProcessingProcessing))
			}
		}
		added, err := s.renditions.WithTx(tx).Record(ctx, rows)
		if err != nil {
			return err
		}
		if added > 0 {
			for _, r := range rows {
				observability.RenditionsRecorded.WithLabelValues(r.Quality).Inc()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidatePost(ctx, post.ID)

	if report.Status != transcode.StatusProgress {
		observability.TranscodeJobs.WithLabelValues(report.Status).Inc()
	}

	current, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.renditions.CountByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{PostID: post.ID, ProcessingStatus: current.ProcessingStatus, RenditionCount: count}, nil
}

// Report lets the in-process worker pool deliver results through the same path
// as remote callbacks.
func (s *TranscodeService) Report(ctx context.Context, token string, report transcode.Report) error {
	_, err := s.HandleCallback(ctx, token, report)
	return err
}

// plannedRenditions checks every reported rendition against the ladder and the
// key it was planned under.
func (s *TranscodeService) plannedRenditions(post *models.Post, reported []transcode.RenditionReport) ([]models.Rendition, error) {
	rows := make([]models.Rendition, 0, len(reported))
	for _, r := range reported {
		if _, ok := s.ladder.Lookup(r.Quality); !ok {
			return nil, models.NewValidationError(fmt.Sprintf("unknown rendition quality %q", r.Quality))
		}
		if want := transcode.RenditionKey(post.StorageKey, r.Quality); r.StorageKey != want {
			return nil, models.NewValidationError(fmt.Sprintf("rendition %s must be stored at %s", r.Quality, want))
		}
		rows = append(rows, models.Rendition{
			PostID:      post.ID,
			Quality:     r.Quality,
			BitrateKbps: r.BitrateKbps,
			Width:       r.Width,
			Height:      r.Height,
			StorageKey:  r.StorageKey,
		})
	}
	return rows, nil
}
