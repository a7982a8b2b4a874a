package repository

import (
	"context"
	"regexp"
	"testing"

	"momento/internal/cache"
	"momento/internal/models"
	"momento/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	post := &models.Post{OwnerID: 1, MediaKind: models.MediaKindPhoto, StorageKey: "media/1/a.jpg"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, post)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), post.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_Create_DuplicateKey(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_posts_storage_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Post{StorageKey: "media/1/a.jpg"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		postID       uint
		mockBehavior func()
		wantCode     string
	}{
		{
			name:   "Success",
			postID: 1,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1 ORDER BY "posts"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "processing_status"}).AddRow(1, 10, "ready"))
			},
		},
		{
			name:   "Not Found",
			postID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1 ORDER BY "posts"."id" LIMIT $2`)).
					WithArgs(99, 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			wantCode: models.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			post, err := repo.GetByID(ctx, tt.postID)
			if tt.wantCode != "" {
				assert.True(t, models.IsCode(err, tt.wantCode))
				assert.Nil(t, post)
			} else {
				require.NoError(t, err)
				assert.Equal(t, uint(10), post.OwnerID)
				assert.Equal(t, models.ProcessingReady, post.ProcessingStatus)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostRepository_TransitionProcessing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	post := testutil.CreatePost(t, db, 1,
		testutil.WithKind(models.MediaKindVideo),
		testutil.WithStatus(models.ProcessingUploading, models.ModerationPending))

	changed, err := repo.TransitionProcessing(ctx, post.ID, models.ProcessingProcessing, "")
	require.NoError(t, err)
	assert.True(t, changed)

	// Replaying the same transition is a no-op success.
	changed, err = repo.TransitionProcessing(ctx, post.ID, models.ProcessingProcessing, "")
	require.NoError(t, err)
	assert.False(t, changed)

	// There is no way back to uploading.
	_, err = repo.TransitionProcessing(ctx, post.ID, models.ProcessingUploading, "")
	assert.True(t, models.IsCode(err, models.CodeInvalidTransition))

	changed, err = repo.TransitionProcessing(ctx, post.ID, models.ProcessingFailed, "decoder crashed")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, got.ProcessingStatus)
	assert.Equal(t, "decoder crashed", got.FailureReason)

	// failed is terminal.
	_, err = repo.TransitionProcessing(ctx, post.ID, models.ProcessingCompleted, "")
	assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
}

func TestPostRepository_TransitionModeration(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	post := testutil.CreatePost(t, db, 1, testutil.WithStatus(models.ProcessingReady, models.ModerationPending))

	changed, err := repo.TransitionModeration(ctx, post.ID, models.ModerationFlagged)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionModeration(ctx, post.ID, models.ModerationFlagged)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.TransitionModeration(ctx, post.ID, models.ModerationApproved)
	assert.True(t, models.IsCode(err, models.CodeInvalidTransition))

	_, err = repo.TransitionModeration(ctx, 4040, models.ModerationApproved)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_GetDetailed_CachesUntilTransition(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db, store)
	ctx := context.Background()

	post := testutil.CreatePost(t, db, 1,
		testutil.WithKind(models.MediaKindVideo),
		testutil.WithStatus(models.ProcessingUploading, models.ModerationPending))

	got, err := repo.GetDetailed(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingUploading, got.ProcessingStatus)
	assert.True(t, mr.Exists(cache.PostKey(post.ID)))

	_, err = repo.TransitionProcessing(ctx, post.ID, models.ProcessingProcessing, "")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PostKey(post.ID)))

	got, err = repo.GetDetailed(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingProcessing, got.ProcessingStatus)
}
