// models/vote.go
package models

import (
	"time"
)

const (
	MinScore = 1
	MaxScore = 10
)

// Vote is one judge's score for one participant's submission. The
// (event, judge, participant) triple is unique; a second vote from the same
// judge for the same participant updates the first (upsert semantics).
type Vote struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID       string `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_judge_participant"`
	JudgeID       string `json:"judge_id" gorm:"not null;uniqueIndex:idx_event_judge_participant"`
	ParticipantID string `json:"participant_id" gorm:"not null;index;uniqueIndex:idx_event_judge_participant"`

	Score   int    `json:"score" gorm:"not null"` // [1,10]
	Comment string `json:"comment,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
