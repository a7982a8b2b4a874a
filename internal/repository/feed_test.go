package repository

import (
	"context"
	"testing"
	"time"

	"momento/internal/models"
	"momento/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var feedBase = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func at(minutes int) testutil.PostOption {
	return testutil.WithCreatedAt(feedBase.Add(time.Duration(minutes) * time.Minute))
}

func ids(posts []models.Post) []uint {
	out := make([]uint, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func setScore(t *testing.T, db *gorm.DB, postID uint, score float64) {
	t.Helper()
	repo := NewEngagementRepository(db)
	_, err := repo.Upsert(context.Background(), postID, models.Delta{})
	require.NoError(t, err)
	require.NoError(t, repo.SetScore(context.Background(), postID, score))
}

func TestFeedRepository_EligibilityPerType(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	feed := NewFeedRepository(db)
	ctx := context.Background()

	ok := testutil.CreatePost(t, db, 1, at(1), testutil.WithEvent(5))
	pending := testutil.CreatePost(t, db, 1, at(2), testutil.WithEvent(5), testutil.WithStatus(models.ProcessingReady, models.ModerationPending))
	flagged := testutil.CreatePost(t, db, 1, at(3), testutil.WithStatus(models.ProcessingReady, models.ModerationFlagged))
	processing := testutil.CreatePost(t, db, 1, at(4), testutil.WithKind(models.MediaKindVideo), testutil.WithStatus(models.ProcessingProcessing, models.ModerationApproved))
	failed := testutil.CreatePost(t, db, 1, at(5), testutil.WithKind(models.MediaKindVideo), testutil.WithStatus(models.ProcessingFailed, models.ModerationApproved))
	completed := testutil.CreatePost(t, db, 1, at(6), testutil.WithKind(models.MediaKindVideo), testutil.WithStatus(models.ProcessingCompleted, models.ModerationApproved))
	other := testutil.CreatePost(t, db, 2, at(7))

	discover, err := feed.Page(ctx, FeedQuery{Type: FeedDiscover, ViewerID: 3, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []uint{other.ID, completed.ID, ok.ID}, ids(discover))

	events, err := feed.Page(ctx, FeedQuery{Type: FeedEvents, ViewerID: 3, EventID: 5, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []uint{ok.ID}, ids(events))

	mine, err := feed.Page(ctx, FeedQuery{Type: FeedMyPosts, ViewerID: 1, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []uint{completed.ID, processing.ID, flagged.ID, pending.ID, ok.ID}, ids(mine))
	assert.NotContains(t, ids(mine), failed.ID)

	_, err = NewSocialRepository(db).AddFollow(ctx, 3, 1)
	require.NoError(t, err)
	following, err := feed.Page(ctx, FeedQuery{Type: FeedFollowing, ViewerID: 3, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []uint{completed.ID, ok.ID}, ids(following))
}

func TestFeedRepository_DiscoverOrdersByScoreThenRecency(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	feed := NewFeedRepository(db)
	ctx := context.Background()

	a := testutil.CreatePost(t, db, 1, at(1))
	b := testutil.CreatePost(t, db, 1, at(2))
	c := testutil.CreatePost(t, db, 1, at(3))
	d := testutil.CreatePost(t, db, 1, at(4))
	setScore(t, db, a.ID, 9)
	setScore(t, db, c.ID, 3)

	page, err := feed.Page(ctx, FeedQuery{Type: FeedDiscover, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, c.ID, d.ID, b.ID}, ids(page))
	assert.InDelta(t, 9.0, page[0].Score, 1e-9)
}

func TestFeedRepository_CursorPaging(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	feed := NewFeedRepository(db)
	ctx := context.Background()

	var all []uint
	for i := 0; i < 5; i++ {
		p := testutil.CreatePost(t, db, 1, at(i))
		all = append([]uint{p.ID}, all...)
	}

	first, err := feed.Page(ctx, FeedQuery{Type: FeedDiscover, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	last := first[1]
	score := last.Score
	second, err := feed.Page(ctx, FeedQuery{Type: FeedDiscover, Limit: 2, After: &Cursor{Score: &score, CreatedAt: last.CreatedAt, ID: last.ID}})
	require.NoError(t, err)
	require.Len(t, second, 2)

	last = second[1]
	third, err := feed.Page(ctx, FeedQuery{Type: FeedEvents, EventID: 0, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, third)

	mineAfter, err := feed.Page(ctx, FeedQuery{Type: FeedMyPosts, ViewerID: 1, Limit: 10, After: &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}})
	require.NoError(t, err)
	assert.Equal(t, all[4:], ids(mineAfter))

	assert.Equal(t, all[:4], append(ids(first), ids(second)...))
}

func TestFeedRepository_UnknownType(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	_, err := NewFeedRepository(db).Page(context.Background(), FeedQuery{Type: "trending", Limit: 5})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}
