package server

import "github.com/gofiber/fiber/v2"

// FollowRequest follows or unfollows another user.
type FollowRequest struct {
	TargetUserID uint   `json:"targetUserId" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=follow unfollow"`
}

// Follow handles POST /social/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	var req FollowRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.socialService.SetFollow(c.UserContext(), currentUser(c), req.TargetUserID, req.Action == "follow")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"following":      res.Following,
		"followerCount":  res.FollowerCount,
		"followingCount": res.FollowingCount,
	})
}
