// Package seed provides helpers to create demo data for the media feed. These
// helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"momento/internal/models"
	"momento/internal/transcode"
	"momento/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

// Mix is the share of seeded posts in each lifecycle state, in percent.
// Whatever is left over after the listed states is eligible.
type Mix struct {
	Videos     int
	Pending    int
	Flagged    int
	Uploading  int
	Processing int
	Failed     int
}

// DefaultMix keeps most posts visible with a handful in every other state.
var DefaultMix = Mix{Videos: 35, Pending: 8, Flagged: 4, Uploading: 4, Processing: 4, Failed: 2}

// Factory builds posts with plausible metadata.
type Factory struct {
	faker   *gofakeit.Faker
	rng     *rand.Rand
	ladder  transcode.Ladder
	mix     Mix
	maxDays int
	now     time.Time
}

// NewFactory creates a Factory. A zero seed picks one from the clock.
func NewFactory(seed int64, ladder transcode.Ladder, mix Mix, maxDays int) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxDays <= 0 {
		maxDays = 30
	}
	return &Factory{
		faker:   gofakeit.New(seed),
		rng:     rand.New(rand.NewSource(seed)),
		ladder:  ladder,
		mix:     mix,
		maxDays: maxDays,
		now:     time.Now().UTC(),
	}
}

var (
	photoTypes = []string{"image/jpeg", "image/png", "image/webp"}
	videoTypes = []string{"video/mp4", "video/quicktime"}
)

// BuildPost returns an unsaved post for ownerID. eventID may be nil.
func (f *Factory) BuildPost(ownerID uint, eventID *uint) *models.Post {
	kind := models.MediaKindPhoto
	mime := photoTypes[f.rng.Intn(len(photoTypes))]
	size := int64(f.faker.IntRange(200, 8000)) << 10
	if f.rng.Intn(100) < f.mix.Videos {
		kind = models.MediaKindVideo
		mime = videoTypes[f.rng.Intn(len(videoTypes))]
		size = int64(f.faker.IntRange(5, 90)) << 20
	}

	post := &models.Post{
		OwnerID:    ownerID,
		MediaKind:  kind,
		StorageKey: fmt.Sprintf("media/%d/%s%s", ownerID, f.faker.UUID(), validation.ExtensionFor(mime)),
		MimeType:   mime,
		ByteSize:   size,
		Title:      f.faker.Sentence(f.faker.IntRange(2, 7)),
		EventID:    eventID,
		CreatedAt:  f.createdAt(),
	}
	f.assignStatus(post)
	return post
}

func (f *Factory) createdAt() time.Time {
	back := time.Duration(f.rng.Intn(f.maxDays*24*60)) * time.Minute
	return f.now.Add(-back)
}

// assignStatus draws a lifecycle state consistent with the post's kind.
func (f *Factory) assignStatus(post *models.Post) {
	video := post.MediaKind.NeedsTranscoding()
	finished := models.ProcessingReady
	if video {
		finished = models.ProcessingCompleted
	}
	post.ProcessingStatus = finished
	post.ModerationStatus = models.ModerationApproved

	roll := f.rng.Intn(100)
	switch {
	case roll < f.mix.Pending:
		post.ModerationStatus = models.ModerationPending
	case roll < f.mix.Pending+f.mix.Flagged:
		post.ModerationStatus = models.ModerationFlagged
	case !video:
	case roll < f.mix.Pending+f.mix.Flagged+f.mix.Uploading:
		post.ProcessingStatus = models.ProcessingUploading
		post.ModerationStatus = models.ModerationPending
	case roll < f.mix.Pending+f.mix.Flagged+f.mix.Uploading+f.mix.Processing:
		post.ProcessingStatus = models.ProcessingProcessing
	case roll < f.mix.Pending+f.mix.Flagged+f.mix.Uploading+f.mix.Processing+f.mix.Failed:
		post.ProcessingStatus = models.ProcessingFailed
		post.FailureReason = "seeded transcoder failure"
	}
}

// Renditions returns the full ladder for a completed video post.
func (f *Factory) Renditions(post *models.Post) []models.Rendition {
	if post.ProcessingStatus != models.ProcessingCompleted {
		return nil
	}
	targets := f.ladder.Targets(post.StorageKey)
	out := make([]models.Rendition, 0, len(targets))
	for _, t := range targets {
		out = append(out, models.Rendition{
			PostID:      post.ID,
			Quality:     t.Quality,
			BitrateKbps: t.BitrateKbps,
			Width:       t.Width,
			Height:      t.Height,
			StorageKey:  t.StorageKey,
			CreatedAt:   post.CreatedAt,
		})
	}
	return out
}

// Comment returns a short comment body.
func (f *Factory) Comment() string {
	switch f.rng.Intn(3) {
	case 0:
		return f.faker.Sentence(f.faker.IntRange(3, 12))
	case 1:
		return fmt.Sprintf("%s %s!", f.faker.Interjection(), f.faker.Adjective())
	default:
		return f.faker.Question()
	}
}

// Intn exposes the factory's deterministic source to the seeder.
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.rng.Intn(n)
}
