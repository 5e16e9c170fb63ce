package services

import (
	"errors"
	"testing"
	"time"

	"hackathon-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// seedVotingEvent creates an event in the given phase with one assigned
// judge and one submitted participant, returning the participant id.
func seedVotingEvent(t *testing.T, db *gorm.DB, eventID string, phase models.EventPhase) string {
	t.Helper()
	now := time.Now()
	event := models.Event{
		ID:                   eventID,
		Title:                "Vote Hack",
		Slug:                 eventID,
		OrganizerID:          "org-1",
		Phase:                phase,
		RegistrationDeadline: now.Add(-3 * time.Hour),
		SubmissionDeadline:   now.Add(-2 * time.Hour),
		VotingDeadline:       now.Add(time.Hour),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	judge := models.JudgeAssignment{
		ID:      uuid.NewString(),
		EventID: eventID,
		JudgeID: "judge-1",
	}
	if err := db.Create(&judge).Error; err != nil {
		t.Fatalf("failed to seed judge: %v", err)
	}
	submitted := now.Add(-90 * time.Minute)
	participant := models.Participant{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UserID:        "user-1",
		WalletAddress: "0x00000000000000000000000000000000000000aa",
		SubmissionURL: "https://cdn.example.com/submissions/a.zip",
		SubmittedAt:   &submitted,
	}
	if err := db.Create(&participant).Error; err != nil {
		t.Fatalf("failed to seed participant: %v", err)
	}
	return participant.ID
}

func TestValidateVoteRejectsClosedVoting(t *testing.T) {
	db := newTestDB(t)
	s := NewVoteService(db, nil)

	cases := []models.EventPhase{
		models.PhaseSubmissionOpen,
		models.PhaseVotingClosed,
		models.PhaseCompleted,
	}
	for _, phase := range cases {
		eventID := "evt-vote-" + string(phase)
		pid := seedVotingEvent(t, db, eventID, phase)
		err := s.validateVote(eventID, "judge-1", pid, 5)
		if !errors.Is(err, ErrVotingClosed) {
			t.Fatalf("phase %s: expected ErrVotingClosed, got %v", phase, err)
		}
	}
}

func TestValidateVoteAcceptsOpenVoting(t *testing.T) {
	db := newTestDB(t)
	s := NewVoteService(db, nil)
	pid := seedVotingEvent(t, db, "evt-vote-open", models.PhaseVotingOpen)

	if err := s.validateVote("evt-vote-open", "judge-1", pid, 5); err != nil {
		t.Fatalf("expected valid vote, got %v", err)
	}
	if err := s.validateVote("evt-vote-open", "judge-1", pid, 11); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if err := s.validateVote("evt-vote-open", "stranger", pid, 5); !errors.Is(err, ErrNotAssignedJudge) {
		t.Fatalf("expected ErrNotAssignedJudge, got %v", err)
	}
	if err := s.validateVote("evt-vote-open", "judge-1", uuid.NewString(), 5); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestValidateVoteRejectsSelfVote(t *testing.T) {
	db := newTestDB(t)
	s := NewVoteService(db, nil)
	seedVotingEvent(t, db, "evt-vote-self", models.PhaseVotingOpen)

	// The judge registered as a participant of the same event.
	submitted := time.Now().Add(-time.Hour)
	self := models.Participant{
		ID:            uuid.NewString(),
		EventID:       "evt-vote-self",
		UserID:        "judge-1",
		WalletAddress: "0x00000000000000000000000000000000000000bb",
		SubmissionURL: "https://cdn.example.com/submissions/b.zip",
		SubmittedAt:   &submitted,
	}
	if err := db.Create(&self).Error; err != nil {
		t.Fatalf("failed to seed self participant: %v", err)
	}

	if err := s.validateVote("evt-vote-self", "judge-1", self.ID, 5); !errors.Is(err, ErrSelfVote) {
		t.Fatalf("expected ErrSelfVote, got %v", err)
	}
}
