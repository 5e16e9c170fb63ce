// services/vote_service.go
package services

import (
	"errors"

	"hackathon-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteService handles judge scoring while voting is open. A judge re-voting
// for the same participant overwrites the previous score (upsert).
type VoteService struct {
	DB     *gorm.DB
	Winner *WinnerService
}

func NewVoteService(db *gorm.DB, winner *WinnerService) *VoteService {
	return &VoteService{DB: db, Winner: winner}
}

func (s *VoteService) validateVote(eventID, judgeID, participantID string, score int) error {
	if score < models.MinScore || score > models.MaxScore {
		return ErrScoreOutOfRange
	}

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return err
	}
	if event.Phase != models.PhaseVotingOpen {
		return ErrVotingClosed
	}

	var assigned int64
	s.DB.Model(&models.JudgeAssignment{}).
		Where("event_id = ? AND judge_id = ?", eventID, judgeID).
		Count(&assigned)
	if assigned == 0 {
		return ErrNotAssignedJudge
	}

	var participant models.Participant
	err := s.DB.Where("event_id = ? AND id = ?", eventID, participantID).First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownParticipant
		}
		return err
	}
	if !participant.HasSubmission() {
		return ErrUnknownParticipant
	}
	if participant.UserID == judgeID {
		return ErrSelfVote
	}
	return nil
}

// CastVote records (or overwrites) a judge's score for a participant.
func (s *VoteService) CastVote(c *fiber.Ctx) error {
	eventID := c.Params("id")
	judgeID := c.Locals("user_id").(string)

	var req struct {
		ParticipantID string `json:"participant_id"`
		Score         int    `json:"score"`
		Comment       string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ParticipantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "participant_id is required"})
	}

	if err := s.validateVote(eventID, judgeID, req.ParticipantID, req.Score); err != nil {
		switch {
		case errors.Is(err, ErrScoreOutOfRange):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "score must be between 1 and 10"})
		case errors.Is(err, ErrVotingClosed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Voting is not open for this event"})
		case errors.Is(err, ErrNotAssignedJudge):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not a judge for this event"})
		case errors.Is(err, ErrUnknownParticipant):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Participant not found or has no submission"})
		case errors.Is(err, ErrSelfVote):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Judges cannot vote for themselves"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
		default:
			log.Errorf("DB Error validating vote: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	vote := models.Vote{
		ID:            uuid.NewString(),
		EventID:       eventID,
		JudgeID:       judgeID,
		ParticipantID: req.ParticipantID,
		Score:         req.Score,
		Comment:       req.Comment,
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "judge_id"}, {Name: "participant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "updated_at"}),
	}).Create(&vote).Error
	if err != nil {
		log.Errorf("DB Error saving vote: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save vote"})
	}

	return c.Status(fiber.StatusCreated).JSON(vote)
}

// GetMyVotes lists the authenticated judge's votes for an event.
func (s *VoteService) GetMyVotes(c *fiber.Ctx) error {
	eventID := c.Params("id")
	judgeID := c.Locals("user_id").(string)

	var votes []models.Vote
	err := s.DB.Where("event_id = ? AND judge_id = ?", eventID, judgeID).
		Order("updated_at DESC").
		Find(&votes).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(votes)
}

// GetLeaderboard returns the live (non-final) ranking preview.
func (s *VoteService) GetLeaderboard(c *fiber.Ctx) error {
	eventID := c.Params("id")

	preview, err := s.Winner.PreviewRankings(eventID)
	if err != nil {
		log.Errorf("Failed to compute leaderboard for event %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute leaderboard"})
	}
	return c.JSON(fiber.Map{"results": preview.Ranked, "metrics": preview.Metrics})
}
