// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// MediaKind is the kind of media a post carries.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
	MediaKindReel  MediaKind = "reel"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindPhoto, MediaKindVideo, MediaKindReel:
		return true
	}
	return false
}

// NeedsTranscoding reports whether posts of this kind go through the transcoder.
func (k MediaKind) NeedsTranscoding() bool {
	return k == MediaKindVideo || k == MediaKindReel
}

// Post represents one uploaded photo or video.
type Post struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	OwnerID          uint             `gorm:"not null;index:idx_posts_owner_created,priority:1" json:"owner_id"`
	MediaKind        MediaKind        `gorm:"type:varchar(16);not null" json:"media_kind"`
	StorageKey       string           `gorm:"type:varchar(512);not null;uniqueIndex" json:"storage_key"`
	MimeType         string           `gorm:"type:varchar(100);not null" json:"mime_type"`
	ByteSize         int64            `gorm:"not null" json:"byte_size"`
	Title            string           `gorm:"type:varchar(300)" json:"title,omitempty"`
	EventID          *uint            `gorm:"index:idx_posts_event_created,priority:1" json:"event_id,omitempty"`
	ProcessingStatus ProcessingStatus `gorm:"type:varchar(16);not null;index" json:"processing_status"`
	ModerationStatus ModerationStatus `gorm:"type:varchar(16);not null;index" json:"moderation_status"`
	FailureReason    string           `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `gorm:"index:idx_posts_owner_created,priority:2;index:idx_posts_event_created,priority:2;index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	// Score is read from engagement_counters by feed queries; never persisted on posts.
	Score float64 `gorm:"->;-:migration" json:"-"`

	Renditions []Rendition          `gorm:"foreignKey:PostID" json:"renditions,omitempty"`
	Counters   *EngagementCounters `gorm:"foreignKey:PostID" json:"counters,omitempty"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Eligible reports whether the post may appear in feeds other than the owner's.
func (p *Post) Eligible() bool {
	return p.ProcessingStatus.Visible() && p.ModerationStatus == ModerationApproved
}

// VisibleTo reports whether viewerID may read the post.
func (p *Post) VisibleTo(viewerID uint) bool {
	if p.OwnerID == viewerID {
		return true
	}
	return p.Eligible()
}

// Rendition is one transcoded quality variant of a video post.
type Rendition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"not null;uniqueIndex:idx_renditions_post_quality" json:"post_id"`
	Quality     string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_renditions_post_quality" json:"quality"`
	BitrateKbps int       `gorm:"not null" json:"bitrate_kbps"`
	Width       int       `gorm:"not null" json:"width"`
	Height      int       `gorm:"not null" json:"height"`
	StorageKey  string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Rendition) TableName() string {
	return "renditions"
}
