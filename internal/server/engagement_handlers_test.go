package server

import (
	"fmt"
	"net/http"
	"testing"

	"momento/internal/models"
	"momento/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	post := testutil.CreatePost(t, env.db, 1)

	var body struct {
		Liked      bool  `json:"liked"`
		LikesCount int64 `json:"likesCount"`
	}
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"postId": post.ID, "action": "like"}, &body))
	assert.True(t, body.Liked)
	assert.EqualValues(t, 1, body.LikesCount)

	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"postId": post.ID, "action": "like"}, &body))
	assert.EqualValues(t, 1, body.LikesCount)

	var feed feedResponse
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, "/feed?type=discover", 2, nil, &feed))
	require.Len(t, feed.Items, 1)
	assert.True(t, feed.Items[0].IsLiked)

	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"postId": post.ID, "action": "unlike"}, &body))
	assert.False(t, body.Liked)
	assert.Zero(t, body.LikesCount)
}

func TestLikeEndpoint_Errors(t *testing.T) {
	env := newTestEnv(t, "")
	post := testutil.CreatePost(t, env.db, 1)

	var body map[string]string
	assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"postId": post.ID, "action": "love"}, &body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"action": "like"}, &body))

	assert.Equal(t, fiber.StatusNotFound, env.do(t, http.MethodPost, "/engagement/like", 2,
		fiber.Map{"postId": 999, "action": "like"}, &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestBookmarkShareAndView(t *testing.T) {
	env := newTestEnv(t, "")
	post := testutil.CreatePost(t, env.db, 1)

	var bookmark map[string]bool
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/bookmark", 2,
		fiber.Map{"postId": post.ID, "action": "bookmark"}, &bookmark))
	assert.True(t, bookmark["bookmarked"])

	var share map[string]int64
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/share", 2,
		fiber.Map{"postId": post.ID}, &share))
	assert.EqualValues(t, 1, share["sharesCount"])

	var view struct {
		ViewsCount int64 `json:"viewsCount"`
		Counted    bool  `json:"counted"`
	}
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/view", 2,
		fiber.Map{"postId": post.ID}, &view))
	assert.True(t, view.Counted)
	assert.EqualValues(t, 1, view.ViewsCount)

	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodPost, "/engagement/view", 2,
		fiber.Map{"postId": post.ID}, &view))
	assert.False(t, view.Counted)
	assert.EqualValues(t, 1, view.ViewsCount)

	var counters models.EngagementCounters
	require.NoError(t, env.db.First(&counters, "post_id = ?", post.ID).Error)
	assert.EqualValues(t, 1, counters.SharesCount)
	assert.EqualValues(t, 1, counters.ViewsCount)
	assert.Zero(t, counters.LikesCount)
}

func TestCommentEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	post := testutil.CreatePost(t, env.db, 1)

	var created struct {
		Comment       models.Comment `json:"comment"`
		CommentsCount int64          `json:"commentsCount"`
	}
	require.Equal(t, fiber.StatusCreated, env.do(t, http.MethodPost, "/engagement/comment", 2,
		fiber.Map{"postId": post.ID, "body": "what a night"}, &created))
	assert.EqualValues(t, 1, created.CommentsCount)
	assert.Equal(t, "what a night", created.Comment.Body)

	var list struct {
		Items   []models.Comment `json:"items"`
		HasMore bool             `json:"hasMore"`
	}
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/media/%d/comments", post.ID), 3, nil, &list))
	require.Len(t, list.Items, 1)
	assert.False(t, list.HasMore)

	path := fmt.Sprintf("/engagement/comment/%d", created.Comment.ID)
	var errBody map[string]string
	assert.Equal(t, fiber.StatusForbidden, env.do(t, http.MethodDelete, path, 3, nil, &errBody))

	var deleted map[string]int64
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodDelete, path, 2, nil, &deleted))
	assert.Zero(t, deleted["commentsCount"])
	require.Equal(t, fiber.StatusOK, env.do(t, http.MethodDelete, path, 2, nil, &deleted))
	assert.Zero(t, deleted["commentsCount"])

	assert.Equal(t, fiber.StatusBadRequest, env.do(t, http.MethodDelete, "/engagement/comment/x", 2, nil, &errBody))
	assert.Equal(t, "Invalid comment ID", errBody["error"])
}
