package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"momento/internal/models"
	"momento/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_PhotoIsReadyWithoutTranscoding(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	res := h.ingestPhoto(t, 1)
	assert.NotZero(t, res.PostID)
	assert.True(t, strings.HasPrefix(res.StorageKey, "media/1/"))
	assert.True(t, strings.HasSuffix(res.StorageKey, ".jpg"))
	assert.Equal(t, "http://api.test/storage/upload/"+res.StorageKey, res.UploadURL)
	assert.NotEmpty(t, res.UploadToken)

	post := h.post(t, res.PostID)
	assert.Equal(t, models.ProcessingReady, post.ProcessingStatus)
	assert.Equal(t, models.ModerationPending, post.ModerationStatus)

	_, err := h.transcode.StartTranscode(ctx, 1, StartTranscodeInput{PostID: res.PostID, StorageKey: res.StorageKey, MediaKind: models.MediaKindPhoto})
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.Zero(t, h.transcoder.Calls())

	var counters int64
	require.NoError(t, h.db.Model(&models.EngagementCounters{}).Count(&counters).Error)
	assert.Zero(t, counters, "no counters row until the first interaction")
}

func TestIngest_RejectsOversizedVideoBeforeCreatingPost(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.media.Ingest(context.Background(), IngestInput{
		OwnerID:     1,
		FileName:    "huge.mp4",
		ContentType: "video/mp4",
		MediaKind:   models.MediaKindVideo,
		ByteSize:    150 << 20,
	})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	var count int64
	require.NoError(t, h.db.Model(&models.Post{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngest_RejectsLongTitle(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.media.Ingest(context.Background(), IngestInput{
		OwnerID:     1,
		FileName:    "a.png",
		ContentType: "image/png",
		MediaKind:   models.MediaKindPhoto,
		ByteSize:    1024,
		Title:       strings.Repeat("é", maxTitleLength+1),
	})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestIngest_RegeneratesCollidingKeyOnce(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	taken := h.ingestPhoto(t, 1).StorageKey

	calls := 0
	h.media.newKey = func(ownerID uint, ext string) string {
		calls++
		if calls == 1 {
			return taken
		}
		return storageKey(ownerID, ext)
	}
	res, err := h.media.Ingest(ctx, IngestInput{OwnerID: 1, FileName: "b.jpg", ContentType: "image/jpeg", MediaKind: models.MediaKindPhoto, ByteSize: 10})
	require.NoError(t, err)
	assert.NotEqual(t, taken, res.StorageKey)
	assert.Equal(t, 2, calls)

	h.media.newKey = func(uint, string) string { return taken }
	_, err = h.media.Ingest(ctx, IngestInput{OwnerID: 1, FileName: "c.jpg", ContentType: "image/jpeg", MediaKind: models.MediaKindPhoto, ByteSize: 10})
	assert.True(t, models.IsCode(err, models.CodeConflict))
}

func TestIngest_AutoModerationRunsInBackground(t *testing.T) {
	h := newHarness(t, "auto_moderation=on")

	res := h.ingestPhoto(t, 1)

	require.Eventually(t, func() bool {
		return h.post(t, res.PostID).ModerationStatus == models.ModerationApproved
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.classifier.Calls())
}

func TestGetPost_HidesIneligiblePostsFromOthers(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	res := h.ingestPhoto(t, 1)

	item, err := h.media.GetPost(ctx, 1, res.PostID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationPending, item.ModerationStatus)
	assert.NotNil(t, item.Counters)

	_, err = h.media.GetPost(ctx, 2, res.PostID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	_, err = h.moderation.Moderate(ctx, 1, res.PostID)
	require.NoError(t, err)

	item, err = h.media.GetPost(ctx, 2, res.PostID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, item.ModerationStatus)
	assert.Contains(t, item.MediaURL, "/storage/object/"+res.StorageKey)
}

func TestPhotoRoundTrip_AppearsInDiscover(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	res := h.ingestPhoto(t, 1)
	assert.NotContains(t, h.feedIDs(t, 2, repository.FeedDiscover), res.PostID)

	result, err := h.moderation.Moderate(ctx, 1, res.PostID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, result.ModerationStatus)

	assert.Equal(t, []uint{res.PostID}, h.feedIDs(t, 2, repository.FeedDiscover))
	assert.Zero(t, h.transcoder.Calls())
}
