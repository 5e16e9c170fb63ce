package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"hackathon-engine/models"
)

// dispatchRecorder replaces the timer-based dispatch so tests run
// synchronously.
type dispatchRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *dispatchRecorder) record(eventID string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, delay)
}

func (r *dispatchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestOrchestrator(rec *dispatchRecorder) *DistributionService {
	s := NewDistributionService(nil, nil, nil, nil, 3, 30*time.Second)
	s.dispatch = rec.record
	return s
}

func TestBackoffDelayIsLinear(t *testing.T) {
	s := NewDistributionService(nil, nil, nil, nil, 3, 30*time.Second)
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 90 * time.Second},
	}
	for _, c := range cases {
		if got := s.backoffDelay(c.retry); got != c.want {
			t.Fatalf("backoff for retry %d: expected %s, got %s", c.retry, c.want, got)
		}
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)

	if err := s.Schedule("evt-1"); err != nil {
		t.Fatalf("first schedule failed: %v", err)
	}
	if err := s.Schedule("evt-1"); err != nil {
		t.Fatalf("duplicate schedule should be a no-op, got %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", rec.count())
	}
	if jobs := s.Jobs(); len(jobs) != 1 || jobs[0].EventID != "evt-1" || jobs[0].Status != JobScheduled {
		t.Fatalf("unexpected registry state: %+v", jobs)
	}
}

func TestScheduleRejectedDuringEmergency(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)
	emergency := NewEmergencyService(nil, nil, nil)
	emergency.active = true
	s.Emergency = emergency

	if err := s.Schedule("evt-1"); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("expected ErrEmergencyStopped, got %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("expected no dispatch during emergency, got %d", rec.count())
	}
	if err := s.ManualTrigger("evt-1", models.AdminTrigger("admin-1"), true); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("manual trigger must also be blocked, got %v", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)
	if err := s.Cancel("evt-missing", models.AdminTrigger("admin-1")); err == nil {
		t.Fatal("expected an error cancelling an unregistered job")
	}
}

func TestCancelProcessingJobRejected(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)
	if err := s.Schedule("evt-1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	s.mu.Lock()
	s.jobs["evt-1"].Status = JobProcessing
	s.mu.Unlock()

	if err := s.Cancel("evt-1", models.AdminTrigger("admin-1")); !errors.Is(err, ErrJobProcessing) {
		t.Fatalf("expected ErrJobProcessing, got %v", err)
	}
	if jobs := s.Jobs(); len(jobs) != 1 {
		t.Fatalf("processing job must survive the cancel attempt, got %d jobs", len(jobs))
	}
}

func TestCancelAllJobs(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := s.Schedule(id); err != nil {
			t.Fatalf("schedule %s failed: %v", id, err)
		}
	}
	cancelled := s.CancelAllJobs()
	if len(cancelled) != 3 {
		t.Fatalf("expected 3 cancelled jobs, got %d", len(cancelled))
	}
	if jobs := s.Jobs(); len(jobs) != 0 {
		t.Fatalf("registry should be empty after CancelAllJobs, got %d", len(jobs))
	}
}

func TestOnTransactionFailedResubmitsWithBackoff(t *testing.T) {
	rec := &dispatchRecorder{}
	s := newTestOrchestrator(rec)

	s.OnTransactionFailed("evt-1", 1, "receipt timeout")

	if rec.count() != 1 {
		t.Fatalf("expected a resubmission dispatch, got %d", rec.count())
	}
	rec.mu.Lock()
	delay := rec.calls[0]
	rec.mu.Unlock()
	if delay != 30*time.Second {
		t.Fatalf("expected 30s backoff for attempt 1, got %s", delay)
	}
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].RetryCount != 1 || jobs[0].LastError != "receipt timeout" {
		t.Fatalf("unexpected re-registered job: %+v", jobs)
	}
}
