package models

import "time"

// ModerationAction is the review state of a queue entry.
type ModerationAction string

const (
	ModerationActionOpen     ModerationAction = "open"
	ModerationActionResolved ModerationAction = "resolved"
)

// Verdict is a classifier's safety judgement.
type Verdict struct {
	IsSafe        bool    `json:"is_safe"`
	ViolationType string  `json:"violation_type,omitempty"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason,omitempty"`
}

// ModerationQueueEntry is a flagged post awaiting human review.
type ModerationQueueEntry struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	PostID        uint             `gorm:"not null;uniqueIndex" json:"post_id"`
	Reason        string           `gorm:"type:text" json:"reason"`
	ViolationType string           `gorm:"type:varchar(64)" json:"violation_type"`
	Confidence    float64          `gorm:"not null;default:0" json:"confidence"`
	Action        ModerationAction `gorm:"type:varchar(16);not null;default:'open';index" json:"action"`
	Notes         string           `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ModerationQueueEntry) TableName() string {
	return "moderation_queue"
}
