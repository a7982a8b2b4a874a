package server

import (
	"github.com/gofiber/fiber/v2"
)

// ToggleLikeRequest likes or unlikes a post.
type ToggleLikeRequest struct {
	PostID uint   `json:"postId" validate:"required"`
	Action string `json:"action" validate:"required,oneof=like unlike"`
}

// ToggleBookmarkRequest bookmarks or removes a bookmark.
type ToggleBookmarkRequest struct {
	PostID uint   `json:"postId" validate:"required"`
	Action string `json:"action" validate:"required,oneof=bookmark unbookmark"`
}

// CreateCommentRequest adds a comment to a post.
type CreateCommentRequest struct {
	PostID uint   `json:"postId" validate:"required"`
	Body   string `json:"body" validate:"required"`
}

// Like handles POST /engagement/like
func (s *Server) Like(c *fiber.Ctx) error {
	var req ToggleLikeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.socialService.SetLike(c.UserContext(), currentUser(c), req.PostID, req.Action == "like")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"liked":      res.Active,
		"likesCount": res.LikesCount,
	})
}

// Bookmark handles POST /engagement/bookmark
func (s *Server) Bookmark(c *fiber.Ctx) error {
	var req ToggleBookmarkRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.socialService.SetBookmark(c.UserContext(), currentUser(c), req.PostID, req.Action == "bookmark")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"bookmarked": res.Active})
}

// Share handles POST /engagement/share
func (s *Server) Share(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	count, err := s.engagementService.Share(c.UserContext(), currentUser(c), req.PostID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"sharesCount": count})
}

// View handles POST /engagement/view
func (s *Server) View(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	count, counted, err := s.engagementService.RecordView(c.UserContext(), currentUser(c), req.PostID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"viewsCount": count,
		"counted":    counted,
	})
}

// CreateComment handles POST /engagement/comment
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req CreateCommentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.commentService.Create(c.UserContext(), currentUser(c), req.PostID, req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// DeleteComment handles DELETE /engagement/comment/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := parseID(c, "commentId")
	if err != nil {
		return nil
	}

	count, err := s.commentService.Delete(c.UserContext(), currentUser(c), commentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"commentsCount": count})
}
