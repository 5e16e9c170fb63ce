// services/phase_scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"hackathon-engine/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// phaseGraph maps each phase to its allowed forward manual transitions.
// Completed is terminal.
var phaseGraph = map[models.EventPhase][]models.EventPhase{
	models.PhaseDraft:              {models.PhaseRegistrationOpen},
	models.PhaseRegistrationOpen:   {models.PhaseRegistrationClosed},
	models.PhaseRegistrationClosed: {models.PhaseSubmissionOpen},
	models.PhaseSubmissionOpen:     {models.PhaseSubmissionClosed},
	models.PhaseSubmissionClosed:   {models.PhaseVotingOpen},
	models.PhaseVotingOpen:         {models.PhaseVotingClosed},
	models.PhaseVotingClosed:       {models.PhaseCompleted},
	models.PhaseCompleted:          {},
}

// AllowedTransitions returns the forward set for a phase.
func AllowedTransitions(from models.EventPhase) []models.EventPhase {
	return phaseGraph[from]
}

// IsAllowedTransition reports whether from→to follows the graph.
func IsAllowedTransition(from, to models.EventPhase) bool {
	for _, allowed := range phaseGraph[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// autoRule is one deadline-driven transition, evaluated in priority order.
type autoRule struct {
	From   models.EventPhase
	To     models.EventPhase
	Due    func(e *models.Event, now time.Time, grace time.Duration) bool
	Reason string
}

var autoRules = []autoRule{
	{
		From: models.PhaseRegistrationOpen, To: models.PhaseRegistrationClosed,
		Due: func(e *models.Event, now time.Time, _ time.Duration) bool {
			return now.After(e.RegistrationDeadline)
		},
		Reason: "Automatic transition: registration deadline passed",
	},
	{
		From: models.PhaseRegistrationClosed, To: models.PhaseSubmissionOpen,
		Due: func(e *models.Event, now time.Time, _ time.Duration) bool {
			return now.After(e.RegistrationDeadline)
		},
		Reason: "Automatic transition to submission phase",
	},
	{
		From: models.PhaseSubmissionOpen, To: models.PhaseSubmissionClosed,
		Due: func(e *models.Event, now time.Time, _ time.Duration) bool {
			return now.After(e.SubmissionDeadline)
		},
		Reason: "Automatic transition: submission deadline passed",
	},
	{
		From: models.PhaseSubmissionClosed, To: models.PhaseVotingOpen,
		Due: func(e *models.Event, now time.Time, _ time.Duration) bool {
			return now.After(e.SubmissionDeadline)
		},
		Reason: "Automatic transition to voting phase",
	},
	{
		From: models.PhaseVotingOpen, To: models.PhaseVotingClosed,
		Due: func(e *models.Event, now time.Time, _ time.Duration) bool {
			return now.After(e.VotingDeadline)
		},
		Reason: "Automatic transition: voting deadline passed",
	},
	{
		From: models.PhaseVotingClosed, To: models.PhaseCompleted,
		Due: func(e *models.Event, now time.Time, grace time.Duration) bool {
			return now.After(e.VotingDeadline.Add(grace))
		},
		Reason: "Automatic transition: event completed",
	},
}

// evaluateAutoRules returns the first due rule for the event, or nil.
func evaluateAutoRules(e *models.Event, now time.Time, grace time.Duration) *autoRule {
	for i := range autoRules {
		rule := &autoRules[i]
		if rule.From == e.Phase && rule.Due(e, now, grace) {
			return rule
		}
	}
	return nil
}

// ScanResult reports one scan pass.
type ScanResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Errored   int `json:"errored"`
}

// PhaseScheduler owns the event phase state machine: it validates manual
// transitions and periodically applies automatic deadline-driven ones.
type PhaseScheduler struct {
	DB          *gorm.DB
	Audit       *AuditService
	BatchSize   int
	GracePeriod time.Duration

	now func() time.Time // swappable for tests
}

func NewPhaseScheduler(db *gorm.DB, audit *AuditService, batchSize int, grace time.Duration) *PhaseScheduler {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &PhaseScheduler{
		DB:          db,
		Audit:       audit,
		BatchSize:   batchSize,
		GracePeriod: grace,
		now:         time.Now,
	}
}

// ScanAndAdvance fetches all events in a non-terminal, non-draft phase and
// applies the first due automatic rule to each, with bounded concurrency.
// Per-event failures are counted, never propagated.
func (s *PhaseScheduler) ScanAndAdvance(ctx context.Context) (ScanResult, error) {
	var events []models.Event
	err := s.DB.WithContext(ctx).
		Where("phase NOT IN ?", []models.EventPhase{models.PhaseDraft, models.PhaseCompleted}).
		Find(&events).Error
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to fetch active events: %w", err)
	}

	now := s.now()
	var updated, errored int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.BatchSize)
	for i := range events {
		event := events[i]
		g.Go(func() error {
			rule := evaluateAutoRules(&event, now, s.GracePeriod)
			if rule == nil {
				return nil
			}
			if err := s.applyTransition(gctx, &event, rule.To, rule.Reason, models.SystemTrigger()); err != nil {
				log.Errorf("❌ [PHASE_SCAN] Event %s %s→%s failed: %v", event.ID, rule.From, rule.To, err)
				atomic.AddInt64(&errored, 1)
				return nil // isolate per-event failures
			}
			log.Printf("⏩ [PHASE_SCAN] Event %s: %s → %s", event.ID, rule.From, rule.To)
			atomic.AddInt64(&updated, 1)
			return nil
		})
	}
	_ = g.Wait()

	result := ScanResult{
		Processed: len(events),
		Updated:   int(updated),
		Errored:   int(errored),
	}
	if result.Updated > 0 || result.Errored > 0 {
		log.Printf("🕐 [PHASE_SCAN] processed=%d updated=%d errored=%d", result.Processed, result.Updated, result.Errored)
	}
	return result, nil
}

// ManualTransition validates the target against the current phase's allowed
// set and applies it. The force path bypasses the graph for administrative
// overrides and is logged at elevated severity.
func (s *PhaseScheduler) ManualTransition(eventID string, target models.EventPhase, trigger models.Trigger, reason string, force bool) error {
	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("event %s not found", eventID)
		}
		return err
	}

	if !force && !IsAllowedTransition(event.Phase, target) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, event.Phase, target)
	}
	if force {
		log.Warnf("⚠️ [PHASE] FORCED transition %s → %s on event %s by %s (%s)", event.Phase, target, eventID, trigger, reason)
	}

	return s.applyTransition(context.Background(), &event, target, reason, trigger)
}

// applyTransition updates the phase with an optimistic guard on the current
// phase so two concurrent scans cannot double-advance, then emits an audit
// record asynchronously (best-effort).
func (s *PhaseScheduler) applyTransition(ctx context.Context, event *models.Event, target models.EventPhase, reason string, trigger models.Trigger) error {
	res := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND phase = ?", event.ID, event.Phase).
		Update("phase", target)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: event %s left phase %s concurrently", ErrPhaseMismatch, event.ID, event.Phase)
	}

	s.Audit.RecordAsync(models.AuditLog{
		EventID:     event.ID,
		Action:      "phase_transition",
		FromPhase:   string(event.Phase),
		ToPhase:     string(target),
		Reason:      reason,
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})
	event.Phase = target
	return nil
}
