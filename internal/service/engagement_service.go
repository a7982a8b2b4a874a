package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"momento/internal/cache"
	"momento/internal/config"
	"momento/internal/featureflags"
	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/repository"

	"gorm.io/gorm"
)

// ScoreWeights parameterizes the ranking score. Weights and gravity must be
// non-negative and the offset positive for the score to be monotonic in every
// counter.
type ScoreWeights struct {
	Likes          float64
	Comments       float64
	Shares         float64
	Views          float64
	Gravity        float64
	AgeOffsetHours float64
}

// DefaultScoreWeights weighs every interaction equally and decays like the
// classic "hot" ranking: (age + 2h)^1.5.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Likes: 1, Comments: 1, Shares: 1, Views: 1, Gravity: 1.5, AgeOffsetHours: 2}
}

// ScoreWeightsFromConfig reads the SCORE_* settings.
func ScoreWeightsFromConfig(cfg *config.Config) ScoreWeights {
	if cfg == nil {
		return DefaultScoreWeights()
	}
	return ScoreWeights{
		Likes:          cfg.ScoreWeightLikes,
		Comments:       cfg.ScoreWeightComments,
		Shares:         cfg.ScoreWeightShares,
		Views:          cfg.ScoreWeightViews,
		Gravity:        cfg.ScoreGravity,
		AgeOffsetHours: cfg.ScoreAgeOffsetHours,
	}
}

// Score computes the ranking score of c for a post of the given age.
func (w ScoreWeights) Score(c models.EngagementCounters, age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	offset := w.AgeOffsetHours
	if offset <= 0 {
		offset = 2
	}
	raw := w.Likes*float64(c.LikesCount) +
		w.Comments*float64(c.CommentsCount) +
		w.Shares*float64(c.SharesCount) +
		w.Views*float64(c.ViewsCount)
	return raw / math.Pow(hours+offset, w.Gravity)
}

// EngagementService is the only writer of engagement counters.
type EngagementService struct {
	db         *gorm.DB
	posts      repository.PostRepository
	counters   repository.EngagementRepository
	cache      *cache.Store
	flags      *featureflags.Manager
	weights    ScoreWeights
	viewWindow time.Duration
	now        func() time.Time
}

// NewEngagementService wires the aggregator.
func NewEngagementService(
	db *gorm.DB,
	posts repository.PostRepository,
	counters repository.EngagementRepository,
	store *cache.Store,
	flags *featureflags.Manager,
	weights ScoreWeights,
	viewWindow time.Duration,
) *EngagementService {
	if viewWindow <= 0 {
		viewWindow = 30 * time.Minute
	}
	return &EngagementService{
		db:         db,
		posts:      posts,
		counters:   counters,
		cache:      store,
		flags:      flags,
		weights:    weights,
		viewWindow: viewWindow,
		now:        time.Now,
	}
}

// Apply adjusts the post's counters by delta and recomputes its score in one
// transaction. It does not deduplicate; callers toggle with signed deltas.
func (s *EngagementService) Apply(ctx context.Context, postID uint, delta models.Delta) (*models.EngagementCounters, error) {
	var out *models.EngagementCounters
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.ApplyTx(ctx, tx, postID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, postID)
	return out, nil
}

// ApplyTx is Apply inside the caller's transaction. The caller must call
// Invalidate after committing.
func (s *EngagementService) ApplyTx(ctx context.Context, tx *gorm.DB, postID uint, delta models.Delta) (*models.EngagementCounters, error) {
	post, err := s.posts.WithTx(tx).GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	counters, err := s.counters.WithTx(tx).Upsert(ctx, postID, delta)
	if err != nil {
		return nil, err
	}

	score := s.weights.Score(*counters, s.now().Sub(post.CreatedAt))
	if err := s.counters.WithTx(tx).SetScore(ctx, postID, score); err != nil {
		return nil, err
	}
	counters.Score = score

	recordDelta(delta)
	return counters, nil
}

// Invalidate drops the cached post snapshot that embeds the counters.
func (s *EngagementService) Invalidate(ctx context.Context, postID uint) {
	s.cache.InvalidatePost(ctx, postID)
}

// Share counts one share of a post visible to userID and returns the new total.
func (s *EngagementService) Share(ctx context.Context, userID, postID uint) (int64, error) {
	if _, err := visiblePost(ctx, s.posts, userID, postID); err != nil {
		return 0, err
	}
	counters, err := s.Apply(ctx, postID, models.Delta{Shares: 1})
	if err != nil {
		return 0, err
	}
	return counters.SharesCount, nil
}

// RecordView counts a view at most once per viewer per window. When the
// de-duplication store is unreachable the view is counted.
func (s *EngagementService) RecordView(ctx context.Context, viewerID, postID uint) (int64, bool, error) {
	if _, err := visiblePost(ctx, s.posts, viewerID, postID); err != nil {
		return 0, false, err
	}

	marked := ""
	if s.flags.Enabled(featureflags.ViewDedupe, viewerID) {
		key := cache.ViewKey(postID, viewerID)
		first, err := s.cache.MarkOnce(ctx, key, s.viewWindow)
		if err == nil && first {
			marked = key
		}
		if err != nil {
			slog.WarnContext(ctx, "view de-duplication unavailable", slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
			first = true
		}
		if !first {
			current, err := s.counters.Get(ctx, postID)
			if err != nil {
				return 0, false, err
			}
			return current.ViewsCount, false, nil
		}
	}

	counters, err := s.Apply(ctx, postID, models.Delta{Views: 1})
	if err != nil {
		// Release the claim so the viewer's next view is counted.
		if marked != "" {
			s.cache.Invalidate(ctx, marked)
		}
		return 0, false, err
	}
	return counters.ViewsCount, true, nil
}

func recordDelta(d models.Delta) {
	for counter, v := range map[string]int64{
		"likes":    d.Likes,
		"comments": d.Comments,
		"shares":   d.Shares,
		"views":    d.Views,
	} {
		if v != 0 {
			observability.EngagementApplied.WithLabelValues(counter, signLabel(v)).Inc()
		}
	}
}
