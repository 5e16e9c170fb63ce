// services/distribution_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hackathon-engine/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobScheduled  JobStatus = "scheduled"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DistributionJob is the ephemeral unit of work turning a completed, funded
// event into an executed payout. Process-local: durable Distribution and
// DistributionTransaction rows alone determine whether work still needs
// doing after a restart.
type DistributionJob struct {
	EventID     string    `json:"event_id"`
	Status      JobStatus `json:"status"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// TxSubmitter is the monitor-side handoff: submit a payout and return the
// transaction hash.
type TxSubmitter interface {
	Submit(ctx context.Context, eventID string, recipients []string, amounts []int64) (string, error)
}

// DistributionService orchestrates prize payouts: it scans for payable
// events, keeps an in-memory job registry with retry/backoff, and hands
// submissions off to the transaction monitor.
type DistributionService struct {
	DB        *gorm.DB
	Winner    *WinnerService
	Audit     *AuditService
	Emergency *EmergencyService
	Monitor   TxSubmitter

	MaxRetries  int
	BackoffBase time.Duration

	mu     sync.Mutex
	jobs   map[string]*DistributionJob
	timers map[string]*time.Timer

	// dispatch schedules a run after a delay; replaced in tests.
	dispatch func(eventID string, delay time.Duration)
}

func NewDistributionService(db *gorm.DB, winner *WinnerService, audit *AuditService, emergency *EmergencyService, maxRetries int, backoffBase time.Duration) *DistributionService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	s := &DistributionService{
		DB:          db,
		Winner:      winner,
		Audit:       audit,
		Emergency:   emergency,
		MaxRetries:  maxRetries,
		BackoffBase: backoffBase,
		jobs:        make(map[string]*DistributionJob),
		timers:      make(map[string]*time.Timer),
	}
	s.dispatch = s.runAfter
	return s
}

// SetMonitor wires the transaction monitor after construction (the monitor
// needs the orchestrator for its retry policy, so the two are linked in
// main).
func (s *DistributionService) SetMonitor(m TxSubmitter) {
	s.Monitor = m
}

// backoffDelay is linear: base × retryCount.
func (s *DistributionService) backoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}
	return s.BackoffBase * time.Duration(retryCount)
}

func (s *DistributionService) emergencyActive() bool {
	return s.Emergency != nil && s.Emergency.Active()
}

// ScanForReady finds completed events with a funded, undistributed pool that
// are not already registered, and schedules each. Events with a submitted
// payout still awaiting confirmations are excluded: the pool stays
// distributed=false until the monitor confirms, and re-submitting during
// that window would pay the pool twice.
func (s *DistributionService) ScanForReady(ctx context.Context) error {
	if s.emergencyActive() {
		log.Warnf("🛑 [DIST_SCAN] Emergency stop active — skipping scan")
		return nil
	}

	var events []models.Event
	err := s.DB.WithContext(ctx).
		Joins("JOIN prize_pools ON prize_pools.event_id = events.id").
		Where("events.phase = ?", models.PhaseCompleted).
		Where("prize_pools.deposited = ? AND prize_pools.distributed = ?", true, false).
		Where("NOT EXISTS (SELECT 1 FROM distribution_transactions dt WHERE dt.event_id = events.id AND dt.status = ?)", models.TransactionPending).
		Find(&events).Error
	if err != nil {
		return fmt.Errorf("failed to scan for payable events: %w", err)
	}

	for _, e := range events {
		if err := s.Schedule(e.ID); err != nil && !errors.Is(err, ErrEmergencyStopped) {
			log.Errorf("❌ [DIST_SCAN] Failed to schedule event %s: %v", e.ID, err)
		}
	}
	return nil
}

// Schedule registers a distribution job for the event. Idempotent: a no-op
// if the event is already in the registry.
func (s *DistributionService) Schedule(eventID string) error {
	if s.emergencyActive() {
		return ErrEmergencyStopped
	}

	s.mu.Lock()
	if _, exists := s.jobs[eventID]; exists {
		s.mu.Unlock()
		return nil
	}
	s.jobs[eventID] = &DistributionJob{
		EventID:     eventID,
		Status:      JobScheduled,
		ScheduledAt: time.Now(),
	}
	s.mu.Unlock()

	log.Printf("📦 [DIST] Scheduled distribution job for event %s", eventID)
	s.dispatch(eventID, 0)
	return nil
}

func (s *DistributionService) runAfter(eventID string, delay time.Duration) {
	s.mu.Lock()
	if t, ok := s.timers[eventID]; ok {
		t.Stop()
	}
	s.timers[eventID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, eventID)
		s.mu.Unlock()
		s.run(eventID)
	})
	s.mu.Unlock()
}

// run is one execution attempt for a registered job.
func (s *DistributionService) run(eventID string) {
	if s.emergencyActive() {
		return // job stays registered; emergency activation cancels it
	}

	s.mu.Lock()
	job, ok := s.jobs[eventID]
	if !ok {
		s.mu.Unlock()
		return // cancelled before the timer fired
	}
	job.Status = JobProcessing
	s.mu.Unlock()

	if err := s.execute(context.Background(), eventID); err != nil {
		s.handleFailure(eventID, err)
		return
	}

	// Submission succeeded. Monitoring continues independently in the
	// transaction monitor, so the job leaves the registry here.
	s.mu.Lock()
	delete(s.jobs, eventID)
	s.mu.Unlock()
	log.Printf("✅ [DIST] Payout submitted for event %s — job handed off to monitor", eventID)
}

// execute computes winners (or reuses rows from a prior attempt), persists
// Pending distribution rows and hands the payout to the monitor.
func (s *DistributionService) execute(ctx context.Context, eventID string) error {
	if err := s.validateReady(eventID); err != nil {
		return err
	}

	pending, err := s.loadOrCreateDistributions(eventID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return fmt.Errorf("event %s has no distributable winners", eventID)
	}

	recipients := make([]string, len(pending))
	amounts := make([]int64, len(pending))
	for i, d := range pending {
		recipients[i] = d.RecipientAddress
		amounts[i] = d.Amount
	}

	txHash, err := s.Monitor.Submit(ctx, eventID, recipients, amounts)
	if err != nil {
		return fmt.Errorf("payout submission failed: %w", err)
	}

	if err := s.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status = ?", eventID, models.DistributionPending).
		Update("tx_hash", txHash).Error; err != nil {
		log.Errorf("⚠️ [DIST] Failed to link tx %s to distributions of event %s: %v", txHash, eventID, err)
	}
	return nil
}

// validateReady checks the completeness/funding preconditions.
func (s *DistributionService) validateReady(eventID string) error {
	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		return fmt.Errorf("event %s not found", eventID)
	}
	if event.Phase != models.PhaseCompleted {
		return ErrEventNotCompleted
	}
	var pool models.PrizePool
	if err := s.DB.First(&pool, "event_id = ?", eventID).Error; err != nil {
		return fmt.Errorf("event %s has no prize pool", eventID)
	}
	if !pool.Deposited {
		return ErrPoolNotFunded
	}
	if pool.Distributed {
		return ErrPoolDistributed
	}

	// A submitted transaction that is still unconfirmed already covers the
	// pool; submitting again would double-pay it.
	var inflight int64
	if err := s.DB.Model(&models.DistributionTransaction{}).
		Where("event_id = ? AND status = ?", eventID, models.TransactionPending).
		Count(&inflight).Error; err != nil {
		return err
	}
	if inflight > 0 {
		return ErrPayoutInFlight
	}
	return nil
}

// loadOrCreateDistributions returns the event's Pending rows, creating them
// from the winner calculation on the first attempt. On retries after a
// failed submission the rows already exist and are reused as-is. Rows left
// Cancelled by an emergency stop or an admin cancel are revived here, so a
// re-trigger after recovery works without re-running finalization.
func (s *DistributionService) loadOrCreateDistributions(eventID string) ([]models.Distribution, error) {
	var pending []models.Distribution
	err := s.DB.Where("event_id = ? AND status = ?", eventID, models.DistributionPending).
		Order("position asc, id asc").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}

	res := s.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status = ?", eventID, models.DistributionCancelled).
		Update("status", models.DistributionPending)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🔄 [DIST] Revived %d cancelled distribution(s) for event %s", res.RowsAffected, eventID)
		err := s.DB.Where("event_id = ? AND status = ?", eventID, models.DistributionPending).
			Order("position asc, id asc").
			Find(&pending).Error
		return pending, err
	}

	result, err := s.Winner.Finalize(eventID, models.SystemTrigger())
	if errors.Is(err, ErrAlreadyFinalized) {
		// Ranks and prize amounts are already on the participants; the rows
		// just need rebuilding from them.
		return s.rebuildFromFinalRanks(eventID)
	}
	if err != nil {
		return nil, err
	}

	var pool models.PrizePool
	if err := s.DB.First(&pool, "event_id = ?", eventID).Error; err != nil {
		return nil, err
	}

	rows := make([]models.Distribution, 0, len(result.Awards))
	for _, a := range result.Awards {
		rows = append(rows, models.Distribution{
			ID:               uuid.NewString(),
			PrizePoolID:      pool.ID,
			EventID:          eventID,
			ParticipantID:    a.ParticipantID,
			RecipientAddress: a.RecipientAddress,
			Position:         a.Position,
			Amount:           a.Amount,
			PercentageBps:    a.PercentageBps,
			Status:           models.DistributionPending,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.DB.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to persist distributions: %w", err)
	}
	return rows, nil
}

// rebuildFromFinalRanks reconstructs Pending rows from the persisted final
// ranks and prize amounts when finalization already ran but no reusable
// rows survive.
func (s *DistributionService) rebuildFromFinalRanks(eventID string) ([]models.Distribution, error) {
	var pool models.PrizePool
	if err := s.DB.First(&pool, "event_id = ?", eventID).Error; err != nil {
		return nil, err
	}

	var winners []models.Participant
	err := s.DB.Where("event_id = ? AND final_rank IS NOT NULL AND prize_amount IS NOT NULL", eventID).
		Order("final_rank asc").
		Find(&winners).Error
	if err != nil {
		return nil, err
	}

	distributable := pool.Distributable()
	rows := make([]models.Distribution, 0, len(winners))
	for _, w := range winners {
		if w.PrizeAmount == nil || *w.PrizeAmount <= 0 {
			continue
		}
		bps := 0
		if distributable > 0 {
			bps = int(*w.PrizeAmount * 10000 / distributable)
		}
		rows = append(rows, models.Distribution{
			ID:               uuid.NewString(),
			PrizePoolID:      pool.ID,
			EventID:          eventID,
			ParticipantID:    w.ID,
			RecipientAddress: w.WalletAddress,
			Position:         *w.FinalRank,
			Amount:           *w.PrizeAmount,
			PercentageBps:    bps,
			Status:           models.DistributionPending,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.DB.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to rebuild distributions: %w", err)
	}
	log.Printf("🔄 [DIST] Rebuilt %d distribution(s) from final ranks for event %s", len(rows), eventID)
	return rows, nil
}

// handleFailure applies the retry policy after a failed execution attempt.
func (s *DistributionService) handleFailure(eventID string, cause error) {
	s.mu.Lock()
	job, ok := s.jobs[eventID]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.RetryCount++
	job.LastError = cause.Error()
	retry := job.RetryCount < s.MaxRetries
	attempt := job.RetryCount
	if retry {
		job.Status = JobScheduled
	} else {
		job.Status = JobFailed
		delete(s.jobs, eventID)
	}
	s.mu.Unlock()

	if retry {
		delay := s.backoffDelay(attempt)
		log.Warnf("🔁 [DIST] Event %s attempt %d failed (%v) — retrying in %s", eventID, attempt, cause, delay)
		s.dispatch(eventID, delay)
		return
	}

	log.Errorf("❌ [DIST] Event %s failed after %d attempts: %v", eventID, attempt, cause)
	s.markPendingFailed(eventID)
	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "distribution_failed",
		Reason:      fmt.Sprintf("abandoned after %d attempts: %v", attempt, cause),
		TriggeredBy: models.SystemTrigger().String(),
	})
}

// markPendingFailed flips the event's Pending rows to Failed. Idempotent:
// only rows still Pending are touched.
func (s *DistributionService) markPendingFailed(eventID string) {
	err := s.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status = ?", eventID, models.DistributionPending).
		Update("status", models.DistributionFailed).Error
	if err != nil {
		log.Errorf("⚠️ [DIST] Failed to mark distributions failed for event %s: %v", eventID, err)
	}
}

// OnTransactionFailed is the monitor's retry delegate: a submitted
// transaction reverted or timed out. attempt counts prior submissions.
func (s *DistributionService) OnTransactionFailed(eventID string, attempt int, reason string) {
	if attempt < s.MaxRetries {
		delay := s.backoffDelay(attempt)
		log.Warnf("🔁 [DIST] Tx for event %s failed (%s) — resubmitting in %s (attempt %d/%d)", eventID, reason, delay, attempt, s.MaxRetries)

		s.mu.Lock()
		if _, exists := s.jobs[eventID]; !exists {
			s.jobs[eventID] = &DistributionJob{
				EventID:     eventID,
				Status:      JobScheduled,
				RetryCount:  attempt,
				LastError:   reason,
				ScheduledAt: time.Now(),
			}
		}
		s.mu.Unlock()
		s.dispatch(eventID, delay)
		return
	}

	log.Errorf("❌ [DIST] Tx for event %s failed terminally after %d attempts: %s", eventID, attempt, reason)
	s.markPendingFailed(eventID)
	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "distribution_failed",
		Reason:      fmt.Sprintf("ledger transaction failed after %d attempts: %s", attempt, reason),
		TriggeredBy: models.SystemTrigger().String(),
	})
}

// ManualTrigger bypasses the periodic scan but re-validates the same
// preconditions unless bypass is set (forceRetry path).
func (s *DistributionService) ManualTrigger(eventID string, trigger models.Trigger, bypass bool) error {
	if s.emergencyActive() {
		return ErrEmergencyStopped
	}
	if !bypass {
		if err := s.validateReady(eventID); err != nil {
			return err
		}
	}
	if err := s.Schedule(eventID); err != nil {
		return err
	}
	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "distribution_manual_trigger",
		Reason:      fmt.Sprintf("manual trigger (bypass=%t)", bypass),
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})
	return nil
}

// Cancel removes a Scheduled job and cancels its Pending rows. A job that is
// already Processing is rejected with a conflict.
func (s *DistributionService) Cancel(eventID string, trigger models.Trigger) error {
	s.mu.Lock()
	job, ok := s.jobs[eventID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no distribution job registered for event %s", eventID)
	}
	if job.Status == JobProcessing {
		s.mu.Unlock()
		return ErrJobProcessing
	}
	delete(s.jobs, eventID)
	if t, ok := s.timers[eventID]; ok {
		t.Stop()
		delete(s.timers, eventID)
	}
	s.mu.Unlock()

	err := s.DB.Model(&models.Distribution{}).
		Where("event_id = ? AND status = ?", eventID, models.DistributionPending).
		Update("status", models.DistributionCancelled).Error
	if err != nil {
		return fmt.Errorf("failed to cancel pending distributions: %w", err)
	}

	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "distribution_cancelled",
		Reason:      "distribution job cancelled",
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})
	log.Printf("🚫 [DIST] Cancelled distribution job for event %s", eventID)
	return nil
}

// CancelAllJobs drops every registered job and stops pending retry timers.
// Used by the emergency stop; returns the affected event ids.
func (s *DistributionService) CancelAllJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
		delete(s.jobs, id)
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	return ids
}

// Jobs returns a snapshot of the registry for the health endpoint.
func (s *DistributionService) Jobs() []DistributionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DistributionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}
