package server

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"momento/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFeed_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	for _, target := range []string{
		"/feed?type=trending",
		"/feed?type=events",
		"/feed?type=discover&cursor=%21%21",
		"/feed?type=events&eventId=-3",
	} {
		var body map[string]string
		assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodGet, target, 1, nil, &body), target)
		assert.Equal(t, "VALIDATION_ERROR", body["code"], target)
	}
}

func TestGetFeed_PaginatesMyPosts(t *testing.T) {
	env := newTestEnv(t, "signed_media_urls=off")
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		testutil.CreatePost(t, env.db, 1, testutil.WithCreatedAt(base.Add(time.Duration(i)*time.Minute)))
	}

	var (
		seen   []uint
		cursor string
	)
	for page := 0; page < 10; page++ {
		target := "/feed?type=my_posts&limit=2"
		if cursor != "" {
			target += "&cursor=" + url.QueryEscape(cursor)
		}
		var feed feedResponse
		require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, target, 1, nil, &feed))
		for _, item := range feed.Items {
			assert.Empty(t, item.MediaURL)
			seen = append(seen, item.ID)
		}
		if !feed.HasMore {
			assert.Nil(t, feed.NextCursor)
			break
		}
		require.NotNil(t, feed.NextCursor)
		cursor = *feed.NextCursor
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i-1], seen[i], "newest first")
	}
}

func TestGetFeed_DefaultsToDiscover(t *testing.T) {
	env := newTestEnv(t, "")
	post := testutil.CreatePost(t, env.db, 1)

	var feed feedResponse
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, "/feed", 2, nil, &feed))
	require.Len(t, feed.Items, 1)
	assert.Equal(t, post.ID, feed.Items[0].ID)
}
