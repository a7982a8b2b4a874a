package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags handles GET /flags. It returns the configured raw values and
// their evaluation for the caller, so clients can gate signed URLs and view
// tracking the same way the server does.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUser(c)),
	})
}
