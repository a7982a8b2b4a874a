// Package moderation provides content classifiers for the moderation gate.
package moderation

import (
	"context"
	"errors"
	"strings"

	"momento/internal/models"
)

// ErrUnavailable wraps every classifier failure so callers can fail closed.
var ErrUnavailable = errors.New("moderation classifier unavailable")

// Request is what a classifier sees about a post.
type Request struct {
	PostID     uint             `json:"post_id"`
	OwnerID    uint             `json:"owner_id"`
	Title      string           `json:"title,omitempty"`
	MediaKind  models.MediaKind `json:"media_kind"`
	MimeType   string           `json:"mime_type"`
	StorageKey string           `json:"storage_key"`
	MediaURL   string           `json:"media_url,omitempty"`
}

// Classifier judges whether a post is safe to publish.
type Classifier interface {
	Classify(ctx context.Context, req Request) (models.Verdict, error)
}

// KeywordClassifier flags posts whose title contains a blocked term. It is the
// development classifier and never fails.
type KeywordClassifier struct {
	terms []string
}

// DefaultBlocklist is used when no blocklist is configured.
var DefaultBlocklist = []string{"nsfw", "gore", "violence", "hate"}

// NewKeywordClassifier parses a comma-separated blocklist.
func NewKeywordClassifier(raw string) *KeywordClassifier {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		terms = DefaultBlocklist
	}
	return &KeywordClassifier{terms: terms}
}

func (k *KeywordClassifier) Classify(_ context.Context, req Request) (models.Verdict, error) {
	title := strings.ToLower(req.Title)
	for _, term := range k.terms {
		if strings.Contains(title, term) {
			return models.Verdict{
				IsSafe:        false,
				ViolationType: "blocked_term",
				Confidence:    0.9,
				Reason:        "title contains blocked term " + term,
			}, nil
		}
	}
	return models.Verdict{IsSafe: true, Confidence: 0.6}, nil
}
