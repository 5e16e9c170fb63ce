// services/emergency_service.go
package services

import (
	"fmt"
	"sync"
	"time"

	"hackathon-engine/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EmergencyService is the global kill-switch layered across the orchestrator
// and monitor: activation halts scheduling, cancels registered jobs and
// bulk-cancels Pending distribution rows. Deactivation does not re-schedule
// anything; the operator re-triggers explicitly.
type EmergencyService struct {
	DB        *gorm.DB
	Audit     *AuditService
	Scheduler *PhaseScheduler

	// Orchestrator is set after construction (it checks the flag, we cancel
	// its jobs).
	Orchestrator *DistributionService

	mu          sync.Mutex
	active      bool
	reasons     map[string]string // actor → reason
	activatedAt time.Time
}

func NewEmergencyService(db *gorm.DB, audit *AuditService, scheduler *PhaseScheduler) *EmergencyService {
	return &EmergencyService{
		DB:        db,
		Audit:     audit,
		Scheduler: scheduler,
		reasons:   make(map[string]string),
	}
}

func (s *EmergencyService) SetOrchestrator(o *DistributionService) {
	s.Orchestrator = o
}

// Active reports whether the emergency stop is engaged.
func (s *EmergencyService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Reasons returns a copy of the actor → reason log.
func (s *EmergencyService) Reasons() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Activate engages the stop, cancels every registered distribution job and
// bulk-transitions all Pending distribution rows to Cancelled.
func (s *EmergencyService) Activate(reason string, trigger models.Trigger) error {
	s.mu.Lock()
	s.active = true
	s.reasons[trigger.String()] = reason
	s.activatedAt = time.Now()
	s.mu.Unlock()

	var cancelled []string
	if s.Orchestrator != nil {
		cancelled = s.Orchestrator.CancelAllJobs()
	}

	if s.DB != nil {
		err := s.DB.Model(&models.Distribution{}).
			Where("status = ?", models.DistributionPending).
			Update("status", models.DistributionCancelled).Error
		if err != nil {
			log.Errorf("❌ [EMERGENCY] Failed to cancel pending distributions: %v", err)
			return fmt.Errorf("failed to cancel pending distributions: %w", err)
		}
	}

	log.Errorf("🛑 EMERGENCY STOP activated by %s: %s (%d jobs cancelled)", trigger, reason, len(cancelled))
	s.Audit.Record(models.AuditLog{
		Action:      "emergency_stop",
		Reason:      fmt.Sprintf("EMERGENCY STOP: %s", reason),
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
		Metadata:    fmt.Sprintf(`{"cancelled_jobs":%d}`, len(cancelled)),
	})
	return nil
}

// Deactivate clears the flag and the reason log. Cancelled jobs are not
// re-scheduled automatically.
func (s *EmergencyService) Deactivate(trigger models.Trigger) {
	s.mu.Lock()
	s.active = false
	s.reasons = make(map[string]string)
	s.mu.Unlock()

	log.Warnf("🟢 Emergency stop deactivated by %s", trigger)
	s.Audit.Record(models.AuditLog{
		Action:      "emergency_resume",
		Reason:      "emergency stop deactivated; cancelled jobs require manual re-trigger",
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})
}

// ForceRetry resets an event's Failed and Cancelled distribution rows to
// Pending and re-triggers the distribution, bypassing the normal
// completeness checks.
func (s *EmergencyService) ForceRetry(eventID string, trigger models.Trigger) error {
	err := s.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status IN ?", eventID,
			[]models.DistributionStatus{models.DistributionFailed, models.DistributionCancelled}).
		Update("status", models.DistributionPending).Error
	if err != nil {
		return fmt.Errorf("failed to reset failed distributions: %w", err)
	}

	s.Audit.Record(models.AuditLog{
		EventID:     eventID,
		Action:      "distribution_force_retry",
		Reason:      "failed and cancelled distributions reset to pending for forced retry",
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})
	return s.Orchestrator.ManualTrigger(eventID, trigger, true)
}

// OverridePhase mutates an event's phase outside the transition graph, for
// incident recovery only. The expected fromPhase is verified unless bypass
// is explicitly requested.
func (s *EmergencyService) OverridePhase(eventID string, from, to models.EventPhase, trigger models.Trigger, bypassValidation bool) error {
	if !bypassValidation {
		var event models.Event
		if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
			return fmt.Errorf("event %s not found", eventID)
		}
		if event.Phase != from {
			return fmt.Errorf("%w: expected %s, found %s", ErrPhaseMismatch, from, event.Phase)
		}
	}
	return s.Scheduler.ManualTransition(eventID, to, trigger, "Emergency phase override", true)
}
