package server

import (
	"momento/internal/models"
	"momento/internal/repository"
	"momento/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /feed?type=&cursor=&eventId=&limit=
func (s *Server) GetFeed(c *fiber.Ctx) error {
	feedType := c.Query("type", string(repository.FeedDiscover))

	eventID := c.QueryInt("eventId", 0)
	if eventID < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid event ID"))
	}

	page, err := s.feedService.GetFeed(c.UserContext(), service.FeedRequest{
		ViewerID: currentUser(c),
		Type:     repository.FeedType(feedType),
		EventID:  uint(eventID),
		Cursor:   c.Query("cursor"),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}
