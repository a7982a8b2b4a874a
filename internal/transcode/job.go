package transcode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnavailable wraps every dispatch failure.
var ErrUnavailable = errors.New("transcoder unavailable")

// Report statuses sent back by a transcoder.
const (
	StatusProgress  = "progress"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Target is one output the transcoder must produce.
type Target struct {
	Tier
	StorageKey string `json:"storageKey"`
}

// Job is a request to transcode one source object into every target.
type Job struct {
	PostID        uint     `json:"postId"`
	SourceKey     string   `json:"sourceKey"`
	SourceURL     string   `json:"sourceUrl,omitempty"`
	MimeType      string   `json:"mimeType"`
	Targets       []Target `json:"targets"`
	CallbackURL   string   `json:"callbackUrl"`
	CallbackToken string   `json:"callbackToken"`
}

// RenditionReport describes one finished output.
type RenditionReport struct {
	Quality     string `json:"quality" validate:"required"`
	BitrateKbps int    `json:"bitrate" validate:"gt=0"`
	Width       int    `json:"width" validate:"gt=0"`
	Height      int    `json:"height" validate:"gt=0"`
	StorageKey  string `json:"storageKey" validate:"required"`
}

// Report is what a transcoder sends to the callback endpoint.
type Report struct {
	PostID     uint              `json:"postId" validate:"required"`
	Status     string            `json:"status" validate:"required,oneof=progress completed failed"`
	Renditions []RenditionReport `json:"renditions" validate:"dive"`
	Error      string            `json:"error,omitempty"`
}

// Transcoder accepts jobs. Dispatch returns once the job is queued, not done.
type Transcoder interface {
	Dispatch(ctx context.Context, job Job) error
}

// Reporter receives in-process reports from the local worker pool.
type Reporter interface {
	Report(ctx context.Context, token string, report Report) error
}

const callbackAudience = "transcoder-callback"

// CallbackTokens mints and checks the per-job bearer tokens transcoders use
// when reporting back.
type CallbackTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewCallbackTokens creates a token helper. ttl bounds how long a job may report.
func NewCallbackTokens(secret string, ttl time.Duration) *CallbackTokens {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CallbackTokens{secret: []byte(secret), ttl: ttl}
}

// Issue creates a token scoped to postID.
func (c *CallbackTokens) Issue(postID uint) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(postID), 10),
		Audience:  jwt.ClaimStrings{callbackAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("issue callback token: %w", err)
	}
	return token, nil
}

// Verify returns the post id token was issued for.
func (c *CallbackTokens) Verify(token string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(callbackAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid callback token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid callback token subject")
	}
	return uint(id), nil
}
