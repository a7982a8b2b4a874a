// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"momento/internal/database"
	"momento/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory database with every persistent model
// migrated. Timestamps are stored in UTC so string comparisons order correctly.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:momento_test_%d?mode=memory&cache=private", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// PostOption adjusts a fixture post before it is inserted.
type PostOption func(*models.Post)

// WithStatus sets both lifecycle fields.
func WithStatus(p models.ProcessingStatus, m models.ModerationStatus) PostOption {
	return func(post *models.Post) {
		post.ProcessingStatus = p
		post.ModerationStatus = m
	}
}

// WithKind sets the media kind and a matching mime type.
func WithKind(kind models.MediaKind) PostOption {
	return func(post *models.Post) {
		post.MediaKind = kind
		if kind.NeedsTranscoding() {
			post.MimeType = "video/mp4"
		} else {
			post.MimeType = "image/jpeg"
		}
	}
}

// WithEvent ties the post to an event.
func WithEvent(eventID uint) PostOption {
	return func(post *models.Post) { post.EventID = &eventID }
}

// WithCreatedAt pins the creation time.
func WithCreatedAt(at time.Time) PostOption {
	return func(post *models.Post) { post.CreatedAt = at.UTC() }
}

var keySeq atomic.Int64

// CreatePost inserts an eligible photo post owned by ownerID unless opts say otherwise.
func CreatePost(t testing.TB, db *gorm.DB, ownerID uint, opts ...PostOption) *models.Post {
	t.Helper()
	post := &models.Post{
		OwnerID:          ownerID,
		MediaKind:        models.MediaKindPhoto,
		MimeType:         "image/jpeg",
		ByteSize:         2048,
		StorageKey:       fmt.Sprintf("media/%d/fixture-%d.jpg", ownerID, keySeq.Add(1)),
		ProcessingStatus: models.ProcessingReady,
		ModerationStatus: models.ModerationApproved,
	}
	for _, opt := range opts {
		opt(post)
	}
	require.NoError(t, db.Create(post).Error)
	return post
}
