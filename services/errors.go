// services/errors.go
package services

import "errors"

// Validation errors: rejected synchronously, never retried.
var (
	ErrInvalidTransition  = errors.New("phase transition not allowed")
	ErrScoreOutOfRange    = errors.New("score must be between 1 and 10")
	ErrUnknownParticipant = errors.New("participant not found for event")
	ErrNotAssignedJudge   = errors.New("judge is not assigned to this event")
	ErrSelfVote           = errors.New("judges cannot vote for their own submission")
	ErrVotingClosed       = errors.New("voting is not open for this event")
	ErrEventNotCompleted  = errors.New("event is not in the completed phase")
	ErrPoolNotFunded      = errors.New("prize pool is not deposited")
	ErrPoolDistributed    = errors.New("prize pool is already distributed")
)

// Conflict errors: rejected, no state mutation.
var (
	ErrAlreadyFinalized = errors.New("event results are already finalized")
	ErrJobProcessing    = errors.New("distribution job is already processing")
	ErrPayoutInFlight   = errors.New("a payout transaction is already in flight")
	ErrPhaseMismatch    = errors.New("event phase does not match expected phase")
)

// ErrEmergencyStopped rejects scheduling work while the emergency stop is
// active.
var ErrEmergencyStopped = errors.New("emergency stop is active")
