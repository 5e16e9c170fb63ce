package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"hackathon-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// countingSubmitter stands in for the transaction monitor. Like the real
// monitor it persists a Pending DistributionTransaction for every accepted
// submission, so the in-flight guard sees the same rows it would in
// production.
type countingSubmitter struct {
	db *gorm.DB

	mu    sync.Mutex
	count int
}

func (c *countingSubmitter) Submit(ctx context.Context, eventID string, recipients []string, amounts []int64) (string, error) {
	c.mu.Lock()
	c.count++
	n := c.count
	c.mu.Unlock()

	var total int64
	for _, a := range amounts {
		total += a
	}
	hash := fmt.Sprintf("0x%064d", n)
	tx := models.DistributionTransaction{
		ID:          uuid.NewString(),
		EventID:     eventID,
		TxHash:      hash,
		Status:      models.TransactionPending,
		TotalAmount: total,
	}
	if err := c.db.Create(&tx).Error; err != nil {
		return "", err
	}
	return hash, nil
}

func (c *countingSubmitter) submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// newDBOrchestrator wires an orchestrator against the test database with a
// synchronous dispatch, the way main wires it against Postgres.
func newDBOrchestrator(t *testing.T, db *gorm.DB) (*DistributionService, *countingSubmitter, *EmergencyService) {
	t.Helper()
	audit := NewAuditService(db)
	winner := NewWinnerService(db, audit)
	emergency := NewEmergencyService(db, audit, nil)
	s := NewDistributionService(db, winner, audit, emergency, 3, 30*time.Second)
	emergency.SetOrchestrator(s)
	sub := &countingSubmitter{db: db}
	s.SetMonitor(sub)
	s.dispatch = func(eventID string, _ time.Duration) { s.run(eventID) }
	return s, sub, emergency
}

func TestScanSkipsEventWithUnconfirmedPayout(t *testing.T) {
	db := newTestDB(t)
	seedPayableEvent(t, db, "evt-scan")
	s, sub, _ := newDBOrchestrator(t, db)
	ctx := context.Background()

	if err := s.ScanForReady(ctx); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if got := sub.submissions(); got != 1 {
		t.Fatalf("expected 1 submission after first scan, got %d", got)
	}

	// The pool stays distributed=false until the monitor confirms. A second
	// scan during that window must not submit again.
	if err := s.ScanForReady(ctx); err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if got := sub.submissions(); got != 1 {
		t.Fatalf("payout submitted %d times for one pool", got)
	}

	if err := s.validateReady("evt-scan"); !errors.Is(err, ErrPayoutInFlight) {
		t.Fatalf("expected ErrPayoutInFlight while tx unconfirmed, got %v", err)
	}
}

func TestEmergencyActivateCancelsScheduledJobs(t *testing.T) {
	db := newTestDB(t)
	seedPayableEvent(t, db, "evt-estop")
	s, sub, emergency := newDBOrchestrator(t, db)
	s.dispatch = func(string, time.Duration) {} // park the job in Scheduled

	if err := s.Schedule("evt-estop"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if got := len(s.Jobs()); got != 1 {
		t.Fatalf("expected 1 registered job, got %d", got)
	}

	if err := emergency.Activate("ledger congestion", models.AdminTrigger("admin-1")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if got := len(s.Jobs()); got != 0 {
		t.Fatalf("expected empty registry after emergency stop, got %d jobs", got)
	}
	var row models.Distribution
	if err := db.First(&row, "event_id = ?", "evt-estop").Error; err != nil {
		t.Fatalf("failed to load distribution: %v", err)
	}
	if row.Status != models.DistributionCancelled {
		t.Fatalf("expected distribution cancelled, got %s", row.Status)
	}
	var entry models.AuditLog
	if err := db.First(&entry, "action = ?", "emergency_stop").Error; err != nil {
		t.Fatalf("failed to load audit entry: %v", err)
	}
	if !strings.Contains(entry.Reason, "EMERGENCY STOP") {
		t.Fatalf("audit reason %q does not record the stop", entry.Reason)
	}
	if err := s.Schedule("evt-other"); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("expected ErrEmergencyStopped while active, got %v", err)
	}
	if got := sub.submissions(); got != 0 {
		t.Fatalf("expected no submissions, got %d", got)
	}
}

func TestRetriggerAfterEmergencyStopPaysOutOnce(t *testing.T) {
	db := newTestDB(t)
	seedPayableEvent(t, db, "evt-resume")
	s, sub, emergency := newDBOrchestrator(t, db)

	if err := emergency.Activate("suspicious payout", models.AdminTrigger("admin-1")); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	emergency.Deactivate(models.AdminTrigger("admin-1"))

	if err := s.ManualTrigger("evt-resume", models.AdminTrigger("admin-1"), false); err != nil {
		t.Fatalf("manual trigger after resume failed: %v", err)
	}

	if got := sub.submissions(); got != 1 {
		t.Fatalf("expected exactly 1 submission after re-trigger, got %d", got)
	}
	var rows []models.Distribution
	if err := db.Where("event_id = ?", "evt-resume").Find(&rows).Error; err != nil {
		t.Fatalf("failed to load distributions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 distribution row, got %d", len(rows))
	}
	if rows[0].Status != models.DistributionPending {
		t.Fatalf("expected revived row pending, got %s", rows[0].Status)
	}
	if rows[0].TxHash == "" {
		t.Fatal("revived row is not linked to the submitted transaction")
	}
}

func TestRetriggerRebuildsRowsFromFinalRanks(t *testing.T) {
	db := newTestDB(t)
	seedPayableEvent(t, db, "evt-rebuild")
	// No reusable rows survive, only the ranks on the participants.
	if err := db.Where("event_id = ?", "evt-rebuild").Delete(&models.Distribution{}).Error; err != nil {
		t.Fatalf("failed to drop distributions: %v", err)
	}
	s, sub, _ := newDBOrchestrator(t, db)

	if err := s.ManualTrigger("evt-rebuild", models.AdminTrigger("admin-1"), false); err != nil {
		t.Fatalf("manual trigger failed: %v", err)
	}

	if got := sub.submissions(); got != 1 {
		t.Fatalf("expected 1 submission, got %d", got)
	}
	var rows []models.Distribution
	if err := db.Where("event_id = ?", "evt-rebuild").Find(&rows).Error; err != nil {
		t.Fatalf("failed to load distributions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 rebuilt row, got %d", len(rows))
	}
	got := rows[0]
	if got.Position != 1 || got.Amount != 100000 || got.PercentageBps != 10000 {
		t.Fatalf("rebuilt row mismatch: position=%d amount=%d bps=%d", got.Position, got.Amount, got.PercentageBps)
	}
	if got.TxHash == "" {
		t.Fatal("rebuilt row is not linked to the submitted transaction")
	}
}

func TestForceRetryResetsCancelledRows(t *testing.T) {
	db := newTestDB(t)
	seedPayableEvent(t, db, "evt-force")
	err := db.Model(&models.Distribution{}).
		Where("event_id = ?", "evt-force").
		Update("status", models.DistributionCancelled).Error
	if err != nil {
		t.Fatalf("failed to cancel distributions: %v", err)
	}
	_, sub, emergency := newDBOrchestrator(t, db)

	if err := emergency.ForceRetry("evt-force", models.AdminTrigger("admin-1")); err != nil {
		t.Fatalf("force retry failed: %v", err)
	}
	if got := sub.submissions(); got != 1 {
		t.Fatalf("expected 1 submission, got %d", got)
	}
	var row models.Distribution
	if err := db.First(&row, "event_id = ?", "evt-force").Error; err != nil {
		t.Fatalf("failed to load distribution: %v", err)
	}
	if row.Status != models.DistributionPending || row.TxHash == "" {
		t.Fatalf("expected reset row pending and linked, got status=%s tx=%q", row.Status, row.TxHash)
	}
}
