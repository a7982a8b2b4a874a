package service

import (
	"context"
	"testing"

	"momento/internal/cache"
	"momento/internal/config"
	"momento/internal/featureflags"
	"momento/internal/models"
	"momento/internal/repository"
	"momento/internal/storage"
	"momento/internal/testutil"
	"momento/internal/transcode"
	"momento/internal/validation"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	db         *gorm.DB
	redis      *miniredis.Miniredis
	store      *cache.Store
	objects    *storage.LocalStore
	flags      *featureflags.Manager
	classifier *testutil.ClassifierStub
	transcoder *testutil.TranscoderStub
	ladder     transcode.Ladder

	posts      repository.PostRepository
	counters   repository.EngagementRepository
	edges      repository.SocialRepository
	queue      repository.ModerationRepository
	engagement *EngagementService
	social     *SocialService
	moderation *ModerationService
	transcode  *TranscodeService
	media      *MediaService
	feed       *FeedService
	comments   *CommentService
}

func newHarness(t *testing.T, rawFlags string) *harness {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewStore(client)

	objects, err := storage.NewLocalStore(storage.LocalOptions{
		Root:      t.TempDir(),
		PublicURL: "http://api.test",
		Secret:    "storage-secret",
	})
	require.NoError(t, err)

	ladder, err := transcode.ParseLadder(config.DefaultTranscodeLadder)
	require.NoError(t, err)

	h := &harness{
		db:         db,
		redis:      mr,
		store:      store,
		objects:    objects,
		flags:      featureflags.NewManager(rawFlags),
		classifier: testutil.NewSafeClassifier(),
		transcoder: &testutil.TranscoderStub{},
		ladder:     ladder,
	}
	h.posts = repository.NewPostRepository(db, store)
	h.counters = repository.NewEngagementRepository(db)
	h.edges = repository.NewSocialRepository(db)
	h.queue = repository.NewModerationRepository(db)
	renditions := repository.NewRenditionRepository(db)

	h.engagement = NewEngagementService(db, h.posts, h.counters, store, h.flags, DefaultScoreWeights(), 0)
	h.social = NewSocialService(db, h.posts, h.edges, h.engagement)
	h.moderation = NewModerationService(db, h.posts, h.queue, h.classifier, objects, store)
	h.transcode = NewTranscodeService(db, h.posts, renditions, h.transcoder, objects, store, TranscodeOptions{
		Ladder:      ladder,
		CallbackURL: "http://api.test/api/media/transcode/callback",
		Tokens:      transcode.NewCallbackTokens("callback-secret", 0),
	})
	h.media = NewMediaService(h.posts, objects, validation.DefaultLimits(), h.flags, h.moderation)
	h.feed = NewFeedService(repository.NewFeedRepository(db), renditions, h.counters, h.edges, objects, h.flags, FeedLimits{})
	h.comments = NewCommentService(db, h.posts, repository.NewCommentRepository(db), h.engagement)
	return h
}

func (h *harness) ingestPhoto(t *testing.T, ownerID uint) *IngestResult {
	t.Helper()
	res, err := h.media.Ingest(context.Background(), IngestInput{
		OwnerID:     ownerID,
		FileName:    "party.jpg",
		ContentType: "image/jpeg",
		MediaKind:   models.MediaKindPhoto,
		ByteSize:    2 << 20,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) ingestVideo(t *testing.T, ownerID uint) *IngestResult {
	t.Helper()
	res, err := h.media.Ingest(context.Background(), IngestInput{
		OwnerID:     ownerID,
		FileName:    "clip.mp4",
		ContentType: "video/mp4",
		MediaKind:   models.MediaKindVideo,
		ByteSize:    20 << 20,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) post(t *testing.T, id uint) *models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, h.db.First(&post, id).Error)
	return &post
}

func (h *harness) feedIDs(t *testing.T, viewerID uint, typ repository.FeedType) []uint {
	t.Helper()
	page, err := h.feed.GetFeed(context.Background(), FeedRequest{ViewerID: viewerID, Type: typ, Limit: MaxFeedLimit})
	require.NoError(t, err)
	ids := make([]uint, 0, len(page.Items))
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	return ids
}
