// services/event_service.go
package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"hackathon-engine/models"
	"hackathon-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventService owns the event/participant/judge surface: creation,
// registration, submissions and the manual phase transition endpoint.
type EventService struct {
	DB        *gorm.DB
	Scheduler *PhaseScheduler
	Winner    *WinnerService
	Audit     *AuditService
}

func NewEventService(db *gorm.DB, scheduler *PhaseScheduler, winner *WinnerService, audit *AuditService) *EventService {
	return &EventService{DB: db, Scheduler: scheduler, Winner: winner, Audit: audit}
}

// CreateEvent creates a draft event with its phase deadlines and prize pool.
// The pool's fee rate is locked here and never changes afterward.
func (s *EventService) CreateEvent(c *fiber.Ctx) error {
	var req struct {
		Title                string    `json:"title"`
		Description          string    `json:"description"`
		RegistrationDeadline time.Time `json:"registration_deadline"`
		SubmissionDeadline   time.Time `json:"submission_deadline"`
		VotingDeadline       time.Time `json:"voting_deadline"`
		MaxParticipants      int       `json:"max_participants"`
		PrizeAmount          int64     `json:"prize_amount"` // smallest currency units
		FeeRateBps           int       `json:"fee_rate_bps"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	organizerID := c.Locals("user_id").(string)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}
	if req.RegistrationDeadline.IsZero() || req.SubmissionDeadline.IsZero() || req.VotingDeadline.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "all three phase deadlines are required"})
	}
	if !req.RegistrationDeadline.Before(req.SubmissionDeadline) || !req.SubmissionDeadline.Before(req.VotingDeadline) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "deadlines must be ordered: registration < submission < voting"})
	}
	if req.PrizeAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prize_amount must be positive"})
	}
	if req.FeeRateBps < 0 || req.FeeRateBps >= 10000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "fee_rate_bps must be in [0, 10000)"})
	}

	event := &models.Event{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Slug:                 fmt.Sprintf("%s-%.8s", slug.Make(req.Title), uuid.NewString()),
		Description:          req.Description,
		OrganizerID:          organizerID,
		Phase:                models.PhaseDraft,
		RegistrationDeadline: req.RegistrationDeadline,
		SubmissionDeadline:   req.SubmissionDeadline,
		VotingDeadline:       req.VotingDeadline,
		MaxParticipants:      req.MaxParticipants,
	}
	pool := &models.PrizePool{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		TotalAmount: req.PrizeAmount,
		FeeRateBps:  req.FeeRateBps,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		return tx.Create(pool).Error
	})
	if err != nil {
		log.Errorf("DB Error creating event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create event"})
	}

	event.PrizePool = pool
	return c.Status(fiber.StatusCreated).JSON(event)
}

func (s *EventService) GetAllEvents(c *fiber.Ctx) error {
	var events []models.Event
	query := s.DB.Preload("PrizePool")
	if phase := c.Query("phase"); phase != "" {
		query = query.Where("phase = ?", phase)
	}
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		log.Errorf("DB Error fetching events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch events"})
	}
	return c.JSON(events)
}

func (s *EventService) GetEventByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var event models.Event
	err := s.DB.
		Preload("Participants").
		Preload("Judges").
		Preload("PrizePool").
		First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(event)
}

// PublishEvent opens registration (draft → registration_open).
func (s *EventService) PublishEvent(c *fiber.Ctx) error {
	id := c.Params("id")
	actor := c.Locals("user_id").(string)

	err := s.Scheduler.ManualTransition(id, models.PhaseRegistrationOpen, models.OrganizerTrigger(actor), "Event published by organizer", false)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to publish event"})
	}
	return c.JSON(fiber.Map{"message": "Event published", "event_id": id})
}

// TransitionPhase is the manual phase transition endpoint. Admins may set
// force=true to bypass the transition graph (logged at elevated severity).
func (s *EventService) TransitionPhase(c *fiber.Ctx) error {
	id := c.Params("id")
	actor := c.Locals("user_id").(string)

	var req struct {
		TargetPhase string `json:"target_phase"`
		Reason      string `json:"reason"`
		Force       bool   `json:"force"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TargetPhase == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_phase is required"})
	}

	trigger := models.OrganizerTrigger(actor)
	if req.Force {
		trigger = models.AdminTrigger(actor)
	}
	err := s.Scheduler.ManualTransition(id, models.EventPhase(req.TargetPhase), trigger, req.Reason, req.Force)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if errors.Is(err, ErrPhaseMismatch) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to transition phase"})
	}
	return c.JSON(fiber.Map{"message": "Phase updated", "event_id": id, "phase": req.TargetPhase})
}

// Register adds the authenticated user as a participant while registration
// is open.
func (s *EventService) Register(c *fiber.Ctx) error {
	eventID := c.Params("id")
	userID := c.Locals("user_id").(string)

	var req struct {
		UserName      string `json:"user_name"`
		WalletAddress string `json:"wallet_address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.WalletAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "wallet_address is required for prize payout"})
	}

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
	}
	if event.Phase != models.PhaseRegistrationOpen {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Registration is not open for this event"})
	}
	if event.OrganizerID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Organizers cannot register for their own event"})
	}

	if event.MaxParticipants > 0 {
		var count int64
		s.DB.Model(&models.Participant{}).Where("event_id = ?", eventID).Count(&count)
		if count >= int64(event.MaxParticipants) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Event is full"})
		}
	}

	participant := &models.Participant{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UserID:        userID,
		UserName:      req.UserName,
		WalletAddress: req.WalletAddress,
	}
	if err := s.DB.Create(participant).Error; err != nil {
		log.Errorf("DB Error registering participant: %v", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already registered for this event"})
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

// SubmitProject attaches the participant's submission while submissions are
// open. The archive/cover is uploaded to R2.
func (s *EventService) SubmitProject(c *fiber.Ctx) error {
	eventID := c.Params("id")
	userID := c.Locals("user_id").(string)

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
	}
	if event.Phase != models.PhaseSubmissionOpen {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Submissions are not open for this event"})
	}

	var participant models.Participant
	if err := s.DB.Where("event_id = ? AND user_id = ?", eventID, userID).First(&participant).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not registered for this event"})
	}

	title := c.FormValue("title")
	if title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	submissionURL := c.FormValue("url") // external link submissions allowed
	if archive, err := c.FormFile("archive"); err == nil && archive.Size > 0 {
		ext := filepath.Ext(archive.Filename)
		if ext == "" {
			ext = ".zip"
		}
		key := fmt.Sprintf("submissions/%s/%s%s", eventID, uuid.NewString(), ext)
		url, err := utils.UploadFileToR2(archive, key)
		if err != nil {
			log.Errorf("R2 upload failed for event %s: %v", eventID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload submission archive"})
		}
		submissionURL = url
	}
	if submissionURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "either url or archive is required"})
	}

	now := time.Now()
	participant.SubmissionURL = submissionURL
	participant.SubmissionTitle = title
	participant.SubmittedAt = &now
	if err := s.DB.Save(&participant).Error; err != nil {
		log.Errorf("DB Error saving submission: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save submission"})
	}
	return c.JSON(participant)
}

// AssignJudge adds a judge to the event's panel. The organizer and
// registered participants are excluded.
func (s *EventService) AssignJudge(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	var req struct {
		JudgeID   string `json:"judge_id"`
		JudgeName string `json:"judge_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.JudgeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "judge_id is required"})
	}

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
	}
	if event.OrganizerID == req.JudgeID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "The organizer cannot judge their own event"})
	}

	var participantCount int64
	s.DB.Model(&models.Participant{}).
		Where("event_id = ? AND user_id = ?", eventID, req.JudgeID).
		Count(&participantCount)
	if participantCount > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Participants cannot judge the event they compete in"})
	}

	assignment := &models.JudgeAssignment{
		ID:         uuid.NewString(),
		EventID:    eventID,
		JudgeID:    req.JudgeID,
		JudgeName:  req.JudgeName,
		AssignedBy: actor,
	}
	if err := s.DB.Create(assignment).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Judge is already assigned to this event"})
	}
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// ConfirmDeposit marks the prize pool as funded, recording the deposit tx.
func (s *EventService) ConfirmDeposit(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	var req struct {
		DepositTxHash string `json:"deposit_tx_hash"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var pool models.PrizePool
	if err := s.DB.First(&pool, "event_id = ?", eventID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Prize pool not found"})
	}
	if pool.Deposited {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Prize pool is already deposited"})
	}

	pool.Deposited = true
	pool.DepositTxHash = req.DepositTxHash
	if err := s.DB.Save(&pool).Error; err != nil {
		log.Errorf("DB Error confirming deposit: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to confirm deposit"})
	}

	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "pool_deposited",
		Reason:      fmt.Sprintf("deposit confirmed (tx %s)", req.DepositTxHash),
		TriggeredBy: models.OrganizerTrigger(actor).String(),
		Actor:       actor,
	})
	return c.JSON(pool)
}

// GetResults returns the finalized ranking for a completed event, or a live
// preview when finalization has not run yet.
func (s *EventService) GetResults(c *fiber.Ctx) error {
	eventID := c.Params("id")

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
	}

	var finalized []models.Participant
	err := s.DB.Where("event_id = ? AND final_rank IS NOT NULL", eventID).
		Order("final_rank asc").
		Find(&finalized).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if len(finalized) > 0 {
		return c.JSON(fiber.Map{"final": true, "results": finalized})
	}

	preview, err := s.Winner.PreviewRankings(eventID)
	if err != nil {
		log.Errorf("Failed to preview rankings for event %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute rankings"})
	}
	return c.JSON(fiber.Map{"final": false, "results": preview.Ranked, "metrics": preview.Metrics})
}
