package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"momento/internal/models"
	"momento/internal/repository"
	"momento/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	score := 3.25
	in := repository.Cursor{Score: &score, CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out.Score)
	assert.Equal(t, score, *out.Score)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, uint(42), out.ID)

	empty, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCursor_RejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"!!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"id":3}`)),
	} {
		_, err := DecodeCursor(raw)
		assert.True(t, models.IsCode(err, models.CodeValidation), raw)
	}
}

func TestGetFeed_ValidatesRequest(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.feed.GetFeed(ctx, FeedRequest{ViewerID: 1, Type: "trending"})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = h.feed.GetFeed(ctx, FeedRequest{ViewerID: 1, Type: repository.FeedEvents})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = h.feed.GetFeed(ctx, FeedRequest{ViewerID: 1, Type: repository.FeedDiscover, Cursor: "%%%"})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	recency := EncodeCursor(repository.Cursor{CreatedAt: time.Now(), ID: 1})
	_, err = h.feed.GetFeed(ctx, FeedRequest{ViewerID: 1, Type: repository.FeedDiscover, Cursor: recency})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestGetFeed_EmptyPageHasNoCursor(t *testing.T) {
	h := newHarness(t, "")

	page, err := h.feed.GetFeed(context.Background(), FeedRequest{ViewerID: 1, Type: repository.FeedDiscover})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestGetFeed_CapsLimit(t *testing.T) {
	h := newHarness(t, "")
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < MaxFeedLimit+2; i++ {
		testutil.CreatePost(t, h.db, 1, testutil.WithCreatedAt(base.Add(time.Duration(i)*time.Second)))
	}

	page, err := h.feed.GetFeed(context.Background(), FeedRequest{ViewerID: 1, Type: repository.FeedMyPosts, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Items, MaxFeedLimit)
	assert.True(t, page.HasMore)

	page, err = h.feed.GetFeed(context.Background(), FeedRequest{ViewerID: 1, Type: repository.FeedMyPosts})
	require.NoError(t, err)
	assert.Len(t, page.Items, DefaultFeedLimit)
}

func TestDiscoverPagination_StableUnderInserts(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var original []uint
	for i := 0; i < 6; i++ {
		post := testutil.CreatePost(t, h.db, 1, testutil.WithCreatedAt(base.Add(time.Duration(i)*time.Minute)))
		setScore(t, h, post.ID, float64(10-i))
		original = append(original, post.ID)
	}

	var (
		seen   []uint
		cursor string
	)
	for page := 0; ; page++ {
		require.Less(t, page, 20)
		res, err := h.feed.GetFeed(ctx, FeedRequest{ViewerID: 2, Type: repository.FeedDiscover, Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		for _, item := range res.Items {
			seen = append(seen, item.ID)
		}

		// New qualifying posts land both above and below the cursor.
		top := testutil.CreatePost(t, h.db, 3, testutil.WithCreatedAt(base.Add(time.Duration(10+page)*time.Minute)))
		setScore(t, h, top.ID, 100)
		testutil.CreatePost(t, h.db, 3, testutil.WithCreatedAt(base.Add(-time.Duration(page+1)*time.Minute)))

		if !res.HasMore {
			break
		}
		require.NotNil(t, res.NextCursor)
		cursor = *res.NextCursor
	}

	counts := make(map[uint]int)
	for _, id := range seen {
		counts[id]++
	}
	for id, n := range counts {
		assert.Equal(t, 1, n, "post %d returned more than once", id)
	}
	assert.Equal(t, original, seen[:len(original)], "original posts in score order, none skipped")
}

func setScore(t *testing.T, h *harness, postID uint, score float64) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.EngagementCounters{PostID: postID, Score: score}).Error)
}

func TestEndToEnd_FollowLikeUnlike(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	const userA, userB = uint(1), uint(2)

	res := h.ingestPhoto(t, userA)
	post := h.post(t, res.PostID)
	assert.Equal(t, models.ProcessingReady, post.ProcessingStatus)
	assert.Equal(t, models.ModerationPending, post.ModerationStatus)

	verdict, err := h.moderation.Moderate(ctx, userA, res.PostID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, verdict.ModerationStatus)

	_, err = h.social.SetFollow(ctx, userB, userA, true)
	require.NoError(t, err)

	following := func() *MediaItem {
		page, err := h.feed.GetFeed(ctx, FeedRequest{ViewerID: userB, Type: repository.FeedFollowing})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		return page.Items[0]
	}

	item := following()
	assert.Equal(t, res.PostID, item.ID)
	assert.False(t, item.IsLiked)
	require.NotNil(t, item.IsFollowing)
	assert.True(t, *item.IsFollowing)
	assert.NotEmpty(t, item.MediaURL)

	liked, err := h.social.SetLike(ctx, userB, res.PostID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, liked.LikesCount)

	item = following()
	assert.True(t, item.IsLiked)
	assert.EqualValues(t, 1, item.Counters.LikesCount)

	unliked, err := h.social.SetLike(ctx, userB, res.PostID, false)
	require.NoError(t, err)
	assert.Zero(t, unliked.LikesCount)

	item = following()
	assert.False(t, item.IsLiked)
	assert.Zero(t, item.Counters.LikesCount)
}

func TestGetFeed_EventsAndBookmarks(t *testing.T) {
	h := newHarness(t, "signed_media_urls=off")
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older := testutil.CreatePost(t, h.db, 1, testutil.WithEvent(5), testutil.WithCreatedAt(base))
	newer := testutil.CreatePost(t, h.db, 3, testutil.WithEvent(5), testutil.WithCreatedAt(base.Add(time.Minute)))
	testutil.CreatePost(t, h.db, 1, testutil.WithEvent(6))

	_, err := h.social.SetBookmark(ctx, 2, older.ID, true)
	require.NoError(t, err)

	page, err := h.feed.GetFeed(ctx, FeedRequest{ViewerID: 2, Type: repository.FeedEvents, EventID: 5})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].ID)
	assert.Equal(t, older.ID, page.Items[1].ID)
	assert.True(t, page.Items[1].IsBookmarked)
	assert.False(t, page.Items[0].IsBookmarked)
	assert.Nil(t, page.Items[0].IsFollowing, "events items carry no follow state")
	assert.Empty(t, page.Items[0].MediaURL)
	assert.NotNil(t, page.Items[0].Counters)
}
