package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"momento/internal/featureflags"
	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/repository"
	"momento/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 50
)

// FeedRequest is one page request from a viewer.
type FeedRequest struct {
	ViewerID uint
	Type     repository.FeedType
	EventID  uint
	Cursor   string
	Limit    int
}

// FeedPage is a page of feed items.
type FeedPage struct {
	Items      []*MediaItem `json:"items"`
	NextCursor *string      `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

// cursorToken is the JSON carried inside an opaque cursor.
type cursorToken struct {
	Score     *float64  `json:"s,omitempty"`
	CreatedAt time.Time `json:"t"`
	ID        uint      `json:"id"`
}

// EncodeCursor returns the opaque form of c.
func EncodeCursor(c repository.Cursor) string {
	raw, _ := json.Marshal(cursorToken{Score: c.Score, CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor. An empty string means the first page.
func DecodeCursor(s string) (*repository.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, models.NewValidationError("cursor is malformed")
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil || tok.ID == 0 || tok.CreatedAt.IsZero() {
		return nil, models.NewValidationError("cursor is malformed")
	}
	return &repository.Cursor{Score: tok.Score, CreatedAt: tok.CreatedAt, ID: tok.ID}, nil
}

// FeedLimits bounds page sizes.
type FeedLimits struct {
	Default int
	Max     int
}

// FeedService assembles personalized, cursor-paginated feeds. It never writes.
type FeedService struct {
	feed       repository.FeedRepository
	renditions repository.RenditionRepository
	counters   repository.EngagementRepository
	edges      repository.SocialRepository
	objects    storage.ObjectStore
	flags      *featureflags.Manager
	limits     FeedLimits
}

// NewFeedService wires the feed assembler. objects may be nil.
func NewFeedService(
	feed repository.FeedRepository,
	renditions repository.RenditionRepository,
	counters repository.EngagementRepository,
	edges repository.SocialRepository,
	objects storage.ObjectStore,
	flags *featureflags.Manager,
	limits FeedLimits,
) *FeedService {
	if limits.Default <= 0 {
		limits.Default = DefaultFeedLimit
	}
	if limits.Max <= 0 {
		limits.Max = MaxFeedLimit
	}
	if limits.Default > limits.Max {
		limits.Default = limits.Max
	}
	return &FeedService{
		feed:       feed,
		renditions: renditions,
		counters:   counters,
		edges:      edges,
		objects:    objects,
		flags:      flags,
		limits:     limits,
	}
}

// GetFeed returns one page of the requested feed.
func (s *FeedService) GetFeed(ctx context.Context, req FeedRequest) (*FeedPage, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "feed", "assemble", attribute.String("feed.type", string(req.Type)))
	page, err := s.getFeed(ctx, req)
	observability.EndSpan(span, err)
	if err == nil {
		observability.ObserveSince(observability.FeedLatency.WithLabelValues(string(req.Type)), start)
	}
	return page, err
}

func (s *FeedService) getFeed(ctx context.Context, req FeedRequest) (*FeedPage, error) {
	if !req.Type.Valid() {
		return nil, models.NewValidationError("type must be one of following, discover, events, my_posts")
	}
	if req.Type == repository.FeedEvents && req.EventID == 0 {
		return nil, models.NewValidationError("eventId is required for the events feed")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.limits.Default
	}
	if limit > s.limits.Max {
		limit = s.limits.Max
	}
	after, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	if after != nil && req.Type == repository.FeedDiscover && after.Score == nil {
		return nil, models.NewValidationError("cursor does not belong to this feed")
	}

	posts, err := s.feed.Page(ctx, repository.FeedQuery{
		Type:     req.Type,
		ViewerID: req.ViewerID,
		EventID:  req.EventID,
		After:    after,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Items: []*MediaItem{}}
	if len(posts) > limit {
		page.HasMore = true
		posts = posts[:limit]
	}
	if len(posts) == 0 {
		return page, nil
	}

	items := make([]*MediaItem, len(posts))
	for i := range posts {
		items[i] = &MediaItem{Post: &posts[i]}
	}
	if err := s.annotate(ctx, req, items); err != nil {
		return nil, err
	}
	page.Items = items

	if page.HasMore {
		last := posts[len(posts)-1]
		c := repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if req.Type == repository.FeedDiscover {
			score := last.Score
			c.Score = &score
		}
		next := EncodeCursor(c)
		page.NextCursor = &next
	}
	return page, nil
}

// annotate loads renditions, counters and viewer edges for the page with one
// batched query each, run concurrently.
func (s *FeedService) annotate(ctx context.Context, req FeedRequest, items []*MediaItem) error {
	postIDs := make([]uint, len(items))
	ownerIDs := make([]uint, 0, len(items))
	seenOwner := make(map[uint]bool, len(items))
	for i, item := range items {
		postIDs[i] = item.ID
		if !seenOwner[item.OwnerID] {
			seenOwner[item.OwnerID] = true
			ownerIDs = append(ownerIDs, item.OwnerID)
		}
	}

	var (
		renditions map[uint][]models.Rendition
		counters   map[uint]models.EngagementCounters
		liked      []uint
		bookmarked []uint
		followed   []uint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		renditions, err = s.renditions.ListByPosts(gctx, postIDs)
		return err
	})
	g.Go(func() (err error) {
		counters, err = s.counters.ListByPosts(gctx, postIDs)
		return err
	})
	g.Go(func() (err error) {
		liked, err = s.edges.LikedPostIDs(gctx, req.ViewerID, postIDs)
		return err
	})
	g.Go(func() (err error) {
		bookmarked, err = s.edges.BookmarkedPostIDs(gctx, req.ViewerID, postIDs)
		return err
	})
	withFollow := req.Type == repository.FeedFollowing || req.Type == repository.FeedDiscover
	if withFollow {
		g.Go(func() (err error) {
			followed, err = s.edges.FollowedUserIDs(gctx, req.ViewerID, ownerIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	likedSet := toSet(liked)
	bookmarkedSet := toSet(bookmarked)
	followedSet := toSet(followed)
	sign := s.flags.Enabled(featureflags.SignedMediaURLs, req.ViewerID)

	for _, item := range items {
		item.Renditions = renditions[item.ID]
		if item.Renditions == nil {
			item.Renditions = []models.Rendition{}
		}
		c, ok := counters[item.ID]
		if !ok {
			c = models.EngagementCounters{PostID: item.ID}
		}
		item.Counters = &c
		item.IsLiked = likedSet[item.ID]
		item.IsBookmarked = bookmarkedSet[item.ID]
		if withFollow {
			following := followedSet[item.OwnerID]
			item.IsFollowing = &following
		}
		if sign {
			signURLs(ctx, s.objects, item)
		}
	}
	return nil
}

func toSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
