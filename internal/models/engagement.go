package models

import "time"

// EngagementCounters holds the aggregated engagement for one post. The row is
// created lazily on the first interaction.
type EngagementCounters struct {
	PostID        uint      `gorm:"primaryKey;autoIncrement:false" json:"post_id"`
	LikesCount    int64     `gorm:"not null;default:0" json:"likes_count"`
	CommentsCount int64     `gorm:"not null;default:0" json:"comments_count"`
	SharesCount   int64     `gorm:"not null;default:0" json:"shares_count"`
	ViewsCount    int64     `gorm:"not null;default:0" json:"views_count"`
	Score         float64   `gorm:"not null;default:0;index" json:"score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EngagementCounters) TableName() string {
	return "engagement_counters"
}

// Delta is a signed adjustment to a post's counters.
type Delta struct {
	Likes    int64 `json:"likes,omitempty"`
	Comments int64 `json:"comments,omitempty"`
	Shares   int64 `json:"shares,omitempty"`
	Views    int64 `json:"views,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}
