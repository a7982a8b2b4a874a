package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"momento/internal/models"
	"momento/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagementRepository_Upsert_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEngagementRepository(db)

	mock.ExpectQuery(`(?s)` + regexp.QuoteMeta(`INSERT INTO engagement_counters`) + `.*` + regexp.QuoteMeta(`ON CONFLICT (post_id) DO UPDATE SET`)).
		WithArgs(7, 1, 0, 0, 0, sqlmock.AnyArg(),
			1, 1, 0, 0, 0, 0, 0, 0,
			sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "likes_count", "comments_count", "shares_count", "views_count", "score"}).
			AddRow(7, 3, 0, 0, 0, 0.0))

	counters, err := repo.Upsert(context.Background(), 7, models.Delta{Likes: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters.LikesCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngagementRepository_Upsert_CreatesLazilyAndClamps(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewEngagementRepository(db)
	ctx := context.Background()
	post := testutil.CreatePost(t, db, 1)

	got, err := repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.LikesCount)

	// A decrement on a missing row creates it at zero.
	c, err := repo.Upsert(ctx, post.ID, models.Delta{Likes: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.LikesCount)

	c, err = repo.Upsert(ctx, post.ID, models.Delta{Likes: 2, Views: 5, Shares: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.LikesCount)
	assert.Equal(t, int64(5), c.ViewsCount)
	assert.Equal(t, int64(1), c.SharesCount)

	c, err = repo.Upsert(ctx, post.ID, models.Delta{Likes: -5, Comments: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.LikesCount)
	assert.Equal(t, int64(1), c.CommentsCount)

	require.NoError(t, repo.SetScore(ctx, post.ID, 4.5))
	got, err = repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got.Score, 1e-9)
}

func TestEngagementRepository_Upsert_Concurrent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewEngagementRepository(db)
	ctx := context.Background()
	post := testutil.CreatePost(t, db, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, post.ID, models.Delta{Views: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.ViewsCount)
}

func TestEngagementRepository_ListByPosts(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewEngagementRepository(db)
	ctx := context.Background()
	a := testutil.CreatePost(t, db, 1)
	b := testutil.CreatePost(t, db, 1)

	_, err := repo.Upsert(ctx, a.ID, models.Delta{Likes: 1})
	require.NoError(t, err)

	out, err := repo.ListByPosts(ctx, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int64(1), out[a.ID].LikesCount)

	empty, err := repo.ListByPosts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
