// models/participant.go
package models

import (
	"time"
)

// Participant is one registered entrant in an event. Rank and prize amount
// stay null until finalization writes them exactly once.
type Participant struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID       string `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_user"`
	UserID        string `json:"user_id" gorm:"not null;index;uniqueIndex:idx_event_user"`
	UserName      string `json:"user_name"`
	WalletAddress string `json:"wallet_address" gorm:"type:varchar(128);not null"`

	// Submission (optional until the submission phase)
	SubmissionURL   string     `json:"submission_url,omitempty"`
	SubmissionTitle string     `json:"submission_title,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`

	// Set only during finalization
	FinalRank   *int   `json:"final_rank,omitempty"`
	PrizeAmount *int64 `json:"prize_amount,omitempty"` // smallest currency units

	RegisteredAt time.Time `json:"registered_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// HasSubmission reports whether the participant submitted a project.
func (p *Participant) HasSubmission() bool {
	return p.SubmittedAt != nil && p.SubmissionURL != ""
}

// JudgeAssignment pairs a judge with an event. A judge can neither be the
// organizer nor a participant of the same event.
type JudgeAssignment struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	EventID    string    `json:"event_id" gorm:"not null;index;uniqueIndex:idx_event_judge"`
	JudgeID    string    `json:"judge_id" gorm:"not null;index;uniqueIndex:idx_event_judge"`
	JudgeName  string    `json:"judge_name"`
	AssignedBy string    `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
