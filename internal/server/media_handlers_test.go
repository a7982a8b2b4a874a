package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"momento/internal/service"
	"momento/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedItem struct {
	ID               uint   `json:"id"`
	OwnerID          uint   `json:"owner_id"`
	ProcessingStatus string `json:"processing_status"`
	ModerationStatus string `json:"moderation_status"`
	MediaURL         string `json:"media_url"`
	IsLiked          bool   `json:"is_liked"`
	IsFollowing      *bool  `json:"is_following"`
}

type feedResponse struct {
	Items      []feedItem `json:"items"`
	NextCursor *string    `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
}

func (e *testEnv) upload(t *testing.T, userID uint, fileName, contentType, kind string, size int64) service.IngestResult {
	t.Helper()
	var res service.IngestResult
	status := e.do(t, http.MethodPost, "/media/upload", userID, fiber.Map{
		"fileName":    fileName,
		"contentType": contentType,
		"mediaKind":   kind,
		"fileSize":    size,
	}, &res)
	require.Equal(t, fiber.StatusCreated, status)
	require.NotZero(t, res.PostID)
	return res
}

func (e *testEnv) putObject(t *testing.T, url, token, contentType string, body []byte) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, localPath(t, url), bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestPhotoUploadModerateAndServe(t *testing.T) {
	env := newTestEnv(t, "")
	content := []byte("not really a jpeg")

	res := env.upload(t, 1, "party.jpg", "image/jpeg", "photo", int64(len(content)))
	assert.Contains(t, res.UploadURL, "/storage/upload/"+res.StorageKey)
	assert.NotEmpty(t, res.UploadToken)

	require.Equal(t, fiber.StatusCreated, env.putObject(t, res.UploadURL, res.UploadToken, "image/jpeg", content))

	// Pending posts stay out of other viewers' feeds.
	var feed feedResponse
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, "/feed?type=discover", 2, nil, &feed))
	assert.Empty(t, feed.Items)

	var verdict map[string]interface{}
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/media/moderate", 1, fiber.Map{"postId": res.PostID}, &verdict))
	assert.Equal(t, "approved", verdict["moderationStatus"])

	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, "/feed?type=discover", 2, nil, &feed))
	require.Len(t, feed.Items, 1)
	item := feed.Items[0]
	assert.Equal(t, res.PostID, item.ID)
	require.NotNil(t, item.IsFollowing)
	assert.False(t, *item.IsFollowing)
	require.NotEmpty(t, item.MediaURL)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, localPath(t, item.MediaURL), nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	var single feedItem
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/media/%d", res.PostID), 2, nil, &single))
	assert.Equal(t, "ready", single.ProcessingStatus)
	assert.Equal(t, "approved", single.ModerationStatus)
}

func TestUploadMedia_Rejections(t *testing.T) {
	env := newTestEnv(t, "")

	cases := []struct {
		name string
		body fiber.Map
	}{
		{"too large", fiber.Map{"fileName": "clip.mp4", "contentType": "video/mp4", "mediaKind": "video", "fileSize": 150 << 20}},
		{"wrong type", fiber.Map{"fileName": "notes.pdf", "contentType": "application/pdf", "mediaKind": "photo", "fileSize": 1024}},
		{"unknown kind", fiber.Map{"fileName": "a.jpg", "contentType": "image/jpeg", "mediaKind": "gif", "fileSize": 1024}},
		{"missing size", fiber.Map{"fileName": "a.jpg", "contentType": "image/jpeg", "mediaKind": "photo"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodPost, "/media/upload", 1, tc.body, &body))
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
		})
	}

	var feed feedResponse
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, "/feed?type=my_posts", 1, nil, &feed))
	assert.Empty(t, feed.Items)
}

func TestStorageEndpoints_EnforceGrant(t *testing.T) {
	env := newTestEnv(t, "")
	res := env.upload(t, 1, "party.jpg", "image/jpeg", "photo", 8)

	assert.Equal(t, fiber.StatusUnauthorized, env.putObject(t, res.UploadURL, "", "image/jpeg", []byte("12345678")))
	assert.Equal(t, fiber.StatusUnauthorized, env.putObject(t, res.UploadURL, "forged", "image/jpeg", []byte("12345678")))
	assert.Equal(t, fiber.StatusUnsupportedMediaType, env.putObject(t, res.UploadURL, res.UploadToken, "image/png", []byte("12345678")))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, env.putObject(t, res.UploadURL, res.UploadToken, "image/jpeg", []byte("123456789")))
	assert.Equal(t, fiber.StatusCreated, env.putObject(t, res.UploadURL, res.UploadToken, "image/jpeg", []byte("12345678")))

	// An upload token is not a download token.
	var body map[string]string
	status := env.do(t, http.MethodGet, "/storage/object/"+res.StorageKey+"?token="+res.UploadToken, 0, nil, &body)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestVideoTranscodeAndCallback(t *testing.T) {
	env := newTestEnv(t, "")
	res := env.upload(t, 1, "clip.mp4", "video/mp4", "video", 4096)

	var other map[string]string
	assert.Equal(t, fiber.StatusForbidden, env.do(t, http.MethodPost, "/media/transcode", 2,
		fiber.Map{"postId": res.PostID, "storageKey": res.StorageKey, "mediaKind": "video"}, &other))

	var started service.TranscodeResult
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/media/transcode", 1,
		fiber.Map{"postId": res.PostID, "storageKey": res.StorageKey, "mediaKind": "video"}, &started))
	assert.True(t, started.Success)
	assert.Equal(t, 4, started.RenditionCount)
	assert.Equal(t, "processing", string(started.ProcessingStatus))

	job, ok := env.transcoder.LastJob()
	require.True(t, ok)
	assert.Equal(t, testPublicURL+"/media/transcode/callback", job.CallbackURL)
	report := testutil.CompletedReport(job)

	callback := func(token string, out interface{}) int {
		raw, err := json.Marshal(report)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/media/transcode/callback", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		return resp.StatusCode
	}

	var rejected map[string]string
	assert.Equal(t, fiber.StatusUnauthorized, callback("", &rejected))
	assert.Equal(t, fiber.StatusUnauthorized, callback(env.token(t, 1), &rejected))

	var done service.CallbackResult
	require.Equal(t, fiber.StatusOK, callback(job.CallbackToken, &done))
	assert.Equal(t, res.PostID, done.PostID)
	assert.Equal(t, "completed", string(done.ProcessingStatus))
	assert.EqualValues(t, 4, done.RenditionCount)

	// A repeated upload-complete signal reports the recorded renditions and
	// does not dispatch again.
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/media/transcode", 1,
		fiber.Map{"postId": res.PostID, "storageKey": res.StorageKey, "mediaKind": "video"}, &started))
	assert.Equal(t, "completed", string(started.ProcessingStatus))
	assert.Equal(t, 1, env.transcoder.Calls())
}

func TestGetMedia_HidesOtherUsersPendingPosts(t *testing.T) {
	env := newTestEnv(t, "")
	res := env.upload(t, 1, "party.jpg", "image/jpeg", "photo", 1024)

	var body map[string]string
	assert.Equal(t, fiber.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/media/%d", res.PostID), 2, nil, &body))
	assert.Equal(t, "NOT_FOUND", body["code"])

	var own feedItem
	assert.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/media/%d", res.PostID), 1, nil, &own))
	assert.Equal(t, "pending", own.ModerationStatus)

	assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodGet, "/media/abc", 1, nil, &body))
	assert.Equal(t, "Invalid ID", body["error"])
}
