// models/event.go
package models

import (
	"time"
)

// EventPhase is one stage of a hackathon's lifecycle. Phases only ever move
// forward along the allowed transition graph (see services.PhaseScheduler).
type EventPhase string

const (
	PhaseDraft              EventPhase = "draft"
	PhaseRegistrationOpen   EventPhase = "registration_open"
	PhaseRegistrationClosed EventPhase = "registration_closed"
	PhaseSubmissionOpen     EventPhase = "submission_open"
	PhaseSubmissionClosed   EventPhase = "submission_closed"
	PhaseVotingOpen         EventPhase = "voting_open"
	PhaseVotingClosed       EventPhase = "voting_closed"
	PhaseCompleted          EventPhase = "completed" // terminal
)

// Event represents one timed hackathon with fixed phase deadlines.
type Event struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string     `json:"title" gorm:"not null"`
	Slug        string     `json:"slug" gorm:"uniqueIndex"`
	Description string     `json:"description" gorm:"type:text"`
	OrganizerID string     `json:"organizer_id" gorm:"not null;index"`
	Phase       EventPhase `json:"phase" gorm:"type:varchar(32);default:'draft';index"`

	RegistrationDeadline time.Time `json:"registration_deadline" gorm:"not null"`
	SubmissionDeadline   time.Time `json:"submission_deadline" gorm:"not null"`
	VotingDeadline       time.Time `json:"voting_deadline" gorm:"not null"`

	MaxParticipants int       `json:"max_participants" gorm:"default:0"` // 0 = unlimited
	CoverImageURL   string    `json:"cover_image_url"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Participants []Participant     `json:"participants,omitempty" gorm:"foreignKey:EventID"`
	Judges       []JudgeAssignment `json:"judges,omitempty" gorm:"foreignKey:EventID"`
	PrizePool    *PrizePool        `json:"prize_pool,omitempty" gorm:"foreignKey:EventID"`
}

// IsTerminal reports whether the event can no longer change phase.
func (e *Event) IsTerminal() bool {
	return e.Phase == PhaseCompleted
}
