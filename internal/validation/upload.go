// Package validation holds the boundary checks applied before any state is created.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"momento/internal/models"
)

const mib = 1 << 20

// Default per-kind size ceilings.
const (
	DefaultPhotoMaxBytes int64 = 10 * mib
	DefaultVideoMaxBytes int64 = 100 * mib
)

// allowedTypes maps each media kind to its accepted content types and the file
// extensions each content type may be declared with.
var allowedTypes = map[models.MediaKind]map[string][]string{
	models.MediaKindPhoto: {
		"image/jpeg": {".jpg", ".jpeg"},
		"image/png":  {".png"},
		"image/webp": {".webp"},
		"image/heic": {".heic", ".heif"},
	},
	models.MediaKindVideo: videoTypes,
	models.MediaKindReel:  videoTypes,
}

var videoTypes = map[string][]string{
	"video/mp4":       {".mp4", ".m4v"},
	"video/quicktime": {".mov", ".qt"},
	"video/webm":      {".webm"},
}

// UploadDescriptor is the declared shape of a file about to be uploaded.
type UploadDescriptor struct {
	FileName    string
	ContentType string
	ByteSize    int64
	MediaKind   models.MediaKind
}

// Limits carries the size ceilings enforced by ValidateUpload.
type Limits struct {
	PhotoMaxBytes int64
	VideoMaxBytes int64
}

// DefaultLimits returns the 10 MiB photo / 100 MiB video ceilings.
func DefaultLimits() Limits {
	return Limits{PhotoMaxBytes: DefaultPhotoMaxBytes, VideoMaxBytes: DefaultVideoMaxBytes}
}

// LimitsFromMB builds limits from megabyte settings, falling back to defaults for zero values.
func LimitsFromMB(photoMB, videoMB int) Limits {
	l := DefaultLimits()
	if photoMB > 0 {
		l.PhotoMaxBytes = int64(photoMB) * mib
	}
	if videoMB > 0 {
		l.VideoMaxBytes = int64(videoMB) * mib
	}
	return l
}

// MaxBytes returns the ceiling for kind.
func (l Limits) MaxBytes(kind models.MediaKind) int64 {
	if kind == models.MediaKindPhoto {
		return l.PhotoMaxBytes
	}
	return l.VideoMaxBytes
}

// ValidateUpload checks d against the per-kind ceilings and content-type
// allow-list. The returned error is a VALIDATION_ERROR naming the violated rule.
func ValidateUpload(d UploadDescriptor, limits Limits) error {
	if !d.MediaKind.Valid() {
		return models.NewValidationError(fmt.Sprintf("mediaKind must be one of photo, video, reel (got %q)", d.MediaKind))
	}

	name := strings.TrimSpace(d.FileName)
	if name == "" {
		return models.NewValidationError("fileName is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return models.NewValidationError("fileName must not contain path separators")
	}

	contentType := NormalizeContentType(d.ContentType)
	exts, ok := allowedTypes[d.MediaKind][contentType]
	if !ok {
		return models.NewValidationError(fmt.Sprintf("contentType %q is not allowed for %s", d.ContentType, d.MediaKind))
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !containsString(exts, ext) {
		return models.NewValidationError(fmt.Sprintf("fileName extension %q does not match contentType %s", ext, contentType))
	}

	if d.ByteSize <= 0 {
		return models.NewValidationError("fileSize must be greater than zero")
	}
	if max := limits.MaxBytes(d.MediaKind); d.ByteSize > max {
		return models.NewValidationError(fmt.Sprintf("fileSize %d exceeds the %d MiB limit for %s", d.ByteSize, max/mib, d.MediaKind))
	}
	return nil
}

// NormalizeContentType lowercases a content type and strips parameters.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ExtensionFor returns the canonical extension stored for a content type.
func ExtensionFor(contentType string) string {
	for _, types := range allowedTypes {
		if exts, ok := types[NormalizeContentType(contentType)]; ok {
			return exts[0]
		}
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
