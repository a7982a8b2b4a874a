package server

import (
	"momento/internal/middleware"
	"momento/internal/models"
	"momento/internal/service"
	"momento/internal/transcode"

	"github.com/gofiber/fiber/v2"
)

// UploadMediaRequest describes the file a client is about to upload.
type UploadMediaRequest struct {
	FileName    string           `json:"fileName" validate:"required,max=255"`
	ContentType string           `json:"contentType" validate:"required"`
	MediaKind   models.MediaKind `json:"mediaKind" validate:"required,oneof=photo video reel"`
	FileSize    int64            `json:"fileSize" validate:"gt=0"`
	EventID     *uint            `json:"eventId"`
	Title       string           `json:"title"`
}

type postRequest struct {
	PostID uint `json:"postId" validate:"required"`
}

// StartTranscodeRequest is the client's upload-complete signal.
type StartTranscodeRequest struct {
	PostID     uint             `json:"postId" validate:"required"`
	StorageKey string           `json:"storageKey" validate:"required"`
	MediaKind  models.MediaKind `json:"mediaKind" validate:"required,oneof=photo video reel"`
}

// UploadMedia handles POST /media/upload
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	var req UploadMediaRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.mediaService.Ingest(c.UserContext(), service.IngestInput{
		OwnerID:     currentUser(c),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		MediaKind:   req.MediaKind,
		ByteSize:    req.FileSize,
		Title:       req.Title,
		EventID:     req.EventID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ModerateMedia handles POST /media/moderate
func (s *Server) ModerateMedia(c *fiber.Ctx) error {
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx := middleware.WithPostID(c.UserContext(), req.PostID)
	res, err := s.moderationService.Moderate(ctx, currentUser(c), req.PostID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// StartTranscode handles POST /media/transcode
func (s *Server) StartTranscode(c *fiber.Ctx) error {
	var req StartTranscodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx := middleware.WithPostID(c.UserContext(), req.PostID)
	res, err := s.transcodeService.StartTranscode(ctx, currentUser(c), service.StartTranscodeInput{
		PostID:     req.PostID,
		StorageKey: req.StorageKey,
		MediaKind:  req.MediaKind,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// TranscodeCallback handles POST /media/transcode/callback. The bearer token is
// the per-job callback token issued at dispatch.
func (s *Server) TranscodeCallback(c *fiber.Ctx) error {
	token := middleware.BearerToken(c)
	if token == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Callback token required"))
	}

	var report transcode.Report
	if err := c.BodyParser(&report); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx := middleware.WithPostID(c.UserContext(), report.PostID)
	res, err := s.transcodeService.HandleCallback(ctx, token, report)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GetMedia handles GET /media/:id
func (s *Server) GetMedia(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	item, err := s.mediaService.GetPost(middleware.WithPostID(c.UserContext(), postID), currentUser(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// GetComments handles GET /media/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	page, err := s.commentService.List(c.UserContext(), currentUser(c), postID,
		c.Query("cursor"), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}
