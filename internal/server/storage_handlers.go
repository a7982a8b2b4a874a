package server

import (
	"bytes"
	"errors"
	"path"

	"momento/internal/middleware"
	"momento/internal/models"
	"momento/internal/storage"
	"momento/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// storageToken reads the signed grant from ?token= or the bearer header.
func storageToken(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return middleware.BearerToken(c)
}

func storageError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidGrant):
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired storage token"))
	case errors.Is(err, storage.ErrInvalidKey):
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid object key"))
	case errors.Is(err, storage.ErrNotFound):
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Object", c.Params("*")))
	case errors.Is(err, storage.ErrTooLarge):
		return models.RespondWithError(c, fiber.StatusRequestEntityTooLarge,
			models.NewValidationError("Upload exceeds the declared size"))
	case errors.Is(err, storage.ErrContentType):
		return models.RespondWithError(c, fiber.StatusUnsupportedMediaType,
			models.NewValidationError("Content type does not match the upload"))
	default:
		return respondError(c, err)
	}
}

// PutObject handles PUT /storage/upload/*, the target of a presigned upload URL.
func (s *Server) PutObject(c *fiber.Ctx) error {
	key := c.Params("*")
	grant, err := s.objects.Verify(storageToken(c), key, storage.OpUpload)
	if err != nil {
		return storageError(c, err)
	}
	if grant.ContentType != "" &&
		validation.NormalizeContentType(c.Get(fiber.HeaderContentType)) != validation.NormalizeContentType(grant.ContentType) {
		return storageError(c, storage.ErrContentType)
	}

	n, err := s.objects.Put(c.UserContext(), key, bytes.NewReader(c.Body()), grant)
	if err != nil {
		return storageError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"storageKey": key,
		"size":       n,
	})
}

// GetObject handles GET /storage/object/*, the target of a presigned download URL.
func (s *Server) GetObject(c *fiber.Ctx) error {
	key := c.Params("*")
	if _, err := s.objects.Verify(storageToken(c), key, storage.OpDownload); err != nil {
		return storageError(c, err)
	}

	rc, info, err := s.objects.Open(c.UserContext(), key)
	if err != nil {
		return storageError(c, err)
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	} else {
		c.Type(path.Ext(key))
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.SendStream(rc, int(info.Size))
}
