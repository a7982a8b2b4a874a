package seed

import (
	"context"
	"fmt"
	"log"

	"momento/internal/cache"
	"momento/internal/database"
	"momento/internal/featureflags"
	"momento/internal/models"
	"momento/internal/repository"
	"momento/internal/service"
	"momento/internal/transcode"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	Users          int
	Posts          int
	Events         int
	FollowsPerUser int
	MaxDays        int
	Seed           int64
	Mix            Mix
}

// DefaultOptions seeds a small but well-connected community.
func DefaultOptions() Options {
	return Options{Users: 25, Posts: 150, Events: 5, FollowsPerUser: 6, MaxDays: 30, Mix: DefaultMix}
}

// Summary counts what a run created.
type Summary struct {
	Posts      int
	Renditions int64
	Follows    int
	Likes      int
	Bookmarks  int
	Comments   int
}

// Seeder writes demo data. Engagement goes through the same services the API
// uses so counters and scores stay consistent with the edges.
type Seeder struct {
	db         *gorm.DB
	opts       Options
	factory    *Factory
	renditions repository.RenditionRepository
	social     *service.SocialService
	comments   *service.CommentService
	engagement *service.EngagementService
}

// NewSeeder creates a Seeder over db.
func NewSeeder(db *gorm.DB, ladder transcode.Ladder, opts Options) *Seeder {
	if opts.Users <= 1 {
		opts.Users = 2
	}
	store := cache.NewStore(nil)
	flags := featureflags.NewManager("view_dedupe=off")
	posts := repository.NewPostRepository(db, store)
	engagement := service.NewEngagementService(db, posts, repository.NewEngagementRepository(db),
		store, flags, service.DefaultScoreWeights(), 0)

	return &Seeder{
		db:         db,
		opts:       opts,
		factory:    NewFactory(opts.Seed, ladder, opts.Mix, opts.MaxDays),
		renditions: repository.NewRenditionRepository(db),
		social:     service.NewSocialService(db, posts, repository.NewSocialRepository(db), engagement),
		comments:   service.NewCommentService(db, posts, repository.NewCommentRepository(db), engagement),
		engagement: engagement,
	}
}

// ClearAll removes every seeded row, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	all := database.PersistentModels()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(all[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", all[i], err)
			}
		}
		return nil
	})
}

// Run seeds posts, renditions, follows and engagement.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	posts, err := s.seedPosts(ctx, sum)
	if err != nil {
		return nil, err
	}
	if err := s.seedFollows(ctx, sum); err != nil {
		return nil, err
	}
	if err := s.seedEngagement(ctx, posts, sum); err != nil {
		return nil, err
	}

	log.Printf("seeded %d posts, %d renditions, %d follows, %d likes, %d bookmarks, %d comments",
		sum.Posts, sum.Renditions, sum.Follows, sum.Likes, sum.Bookmarks, sum.Comments)
	return sum, nil
}

func (s *Seeder) userID(i int) uint {
	return uint(i%s.opts.Users) + 1
}

func (s *Seeder) seedPosts(ctx context.Context, sum *Summary) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, s.opts.Posts)
	for i := 0; i < s.opts.Posts; i++ {
		var eventID *uint
		if s.opts.Events > 0 && s.factory.Intn(3) == 0 {
			id := uint(s.factory.Intn(s.opts.Events)) + 1
			eventID = &id
		}
		posts = append(posts, s.factory.BuildPost(s.userID(s.factory.Intn(s.opts.Users)), eventID))
	}
	if len(posts) == 0 {
		return posts, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(posts, 100).Error; err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	sum.Posts = len(posts)

	for _, post := range posts {
		rs := s.factory.Renditions(post)
		if len(rs) == 0 {
			continue
		}
		n, err := s.renditions.Record(ctx, rs)
		if err != nil {
			return nil, fmt.Errorf("record renditions for post %d: %w", post.ID, err)
		}
		sum.Renditions += n
	}

	for _, post := range posts {
		if post.ModerationStatus != models.ModerationFlagged {
			continue
		}
		entry := models.ModerationQueueEntry{
			PostID:        post.ID,
			Reason:        "seeded flag",
			ViolationType: "spam",
			Confidence:    0.9,
			Action:        models.ModerationActionOpen,
		}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("queue post %d: %w", post.ID, err)
		}
	}
	return posts, nil
}

func (s *Seeder) seedFollows(ctx context.Context, sum *Summary) error {
	for i := 0; i < s.opts.Users; i++ {
		follower := s.userID(i)
		for j := 0; j < s.opts.FollowsPerUser; j++ {
			followee := s.userID(s.factory.Intn(s.opts.Users))
			if followee == follower {
				continue
			}
			res, err := s.social.SetFollow(ctx, follower, followee, true)
			if err != nil {
				return fmt.Errorf("follow %d -> %d: %w", follower, followee, err)
			}
			if res.Changed {
				sum.Follows++
			}
		}
	}
	return nil
}

func (s *Seeder) seedEngagement(ctx context.Context, posts []*models.Post, sum *Summary) error {
	for _, post := range posts {
		if !post.Eligible() {
			continue
		}
		for i := 0; i < s.factory.Intn(s.opts.Users); i++ {
			viewer := s.userID(s.factory.Intn(s.opts.Users))

			like, err := s.social.SetLike(ctx, viewer, post.ID, true)
			if err != nil {
				return fmt.Errorf("like post %d: %w", post.ID, err)
			}
			if like.Changed {
				sum.Likes++
			}

			if s.factory.Intn(4) == 0 {
				mark, err := s.social.SetBookmark(ctx, viewer, post.ID, true)
				if err != nil {
					return fmt.Errorf("bookmark post %d: %w", post.ID, err)
				}
				if mark.Changed {
					sum.Bookmarks++
				}
			}

			if s.factory.Intn(3) == 0 {
				if _, err := s.comments.Create(ctx, viewer, post.ID, s.factory.Comment()); err != nil {
					return fmt.Errorf("comment on post %d: %w", post.ID, err)
				}
				sum.Comments++
			}
		}

		delta := models.Delta{
			Views:  int64(s.factory.Intn(40 * s.opts.Users)),
			Shares: int64(s.factory.Intn(5)),
		}
		if !delta.IsZero() {
			if _, err := s.engagement.Apply(ctx, post.ID, delta); err != nil {
				return fmt.Errorf("engagement for post %d: %w", post.ID, err)
			}
		}
	}
	return nil
}
