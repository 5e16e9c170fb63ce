// services/winner_service.go
package services

import (
	"errors"
	"fmt"

	"hackathon-engine/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultPrizeSplitBps is the default podium split in basis points:
// 60% / 25% / 15% for positions 1..3.
var DefaultPrizeSplitBps = []int{6000, 2500, 1500}

// PrizeAward is one winner's computed share before persistence.
type PrizeAward struct {
	ParticipantID    string `json:"participant_id"`
	RecipientAddress string `json:"recipient_address"`
	Position         int    `json:"position"`
	Rank             int    `json:"rank"`
	Amount           int64  `json:"amount"`         // smallest currency units
	PercentageBps    int    `json:"percentage_bps"` // share of the distributable pool
}

// FinalizeResult is what Finalize hands back to the orchestrator.
type FinalizeResult struct {
	Ranked  []RankedParticipant `json:"ranked"`
	Metrics RankingMetrics      `json:"metrics"`
	Awards  []PrizeAward        `json:"awards"`
}

// WinnerService computes winners from votes and persists finalized ranks and
// prize amounts.
type WinnerService struct {
	DB       *gorm.DB
	Audit    *AuditService
	SplitBps []int
}

func NewWinnerService(db *gorm.DB, audit *AuditService) *WinnerService {
	return &WinnerService{DB: db, Audit: audit, SplitBps: DefaultPrizeSplitBps}
}

// SplitPrizes distributes `distributable` across the policy positions using
// integer basis-point arithmetic. All ranked entries sharing a position's
// rank split that position's amount evenly; the per-position division
// remainder goes to the first recipient of the position (rank order), and
// the global truncation remainder goes to the rank-1 winner.
func SplitPrizes(ranked []RankedParticipant, splitBps []int, distributable int64) []PrizeAward {
	if distributable <= 0 {
		return nil
	}

	var awards []PrizeAward
	var paid int64
	for i, bps := range splitBps {
		position := i + 1
		group := make([]RankedParticipant, 0, 1)
		for _, r := range ranked {
			if r.Rank == position {
				group = append(group, r)
			}
		}
		if len(group) == 0 {
			continue
		}

		positionAmount := distributable * int64(bps) / 10000
		share := positionAmount / int64(len(group))
		remainder := positionAmount % int64(len(group))
		for j, r := range group {
			amount := share
			if j == 0 {
				amount += remainder
			}
			awards = append(awards, PrizeAward{
				ParticipantID:    r.ParticipantID,
				RecipientAddress: r.WalletAddress,
				Position:         position,
				Rank:             r.Rank,
				Amount:           amount,
				PercentageBps:    bps / len(group),
			})
			paid += amount
		}
	}

	// Truncation leftover from the bps division goes to the overall winner
	// so the whole distributable pool is paid out when a rank 1 exists.
	if leftover := distributable - paid; leftover > 0 {
		for i := range awards {
			if awards[i].Position == 1 {
				awards[i].Amount += leftover
				break
			}
		}
	}

	return awards
}

// Finalize computes rankings and prize amounts for a completed event and
// persists final ranks. It is idempotent-guarded: a second call for an event
// whose participants already carry a rank fails with ErrAlreadyFinalized.
func (s *WinnerService) Finalize(eventID string, trigger models.Trigger) (*FinalizeResult, error) {
	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s not found", eventID)
		}
		return nil, err
	}
	if event.Phase != models.PhaseCompleted {
		return nil, ErrEventNotCompleted
	}

	// Idempotency guard: any participant already ranked means a prior
	// finalize ran to completion.
	var rankedCount int64
	if err := s.DB.Model(&models.Participant{}).
		Where("event_id = ? AND final_rank IS NOT NULL", eventID).
		Count(&rankedCount).Error; err != nil {
		return nil, err
	}
	if rankedCount > 0 {
		return nil, ErrAlreadyFinalized
	}

	var pool models.PrizePool
	if err := s.DB.First(&pool, "event_id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s has no prize pool", eventID)
		}
		return nil, err
	}

	entries, totalJudges, err := s.loadVoteEntries(eventID)
	if err != nil {
		return nil, err
	}

	ranked, metrics := ComputeRankings(entries, totalJudges, DefaultRankingPolicy())
	awards := SplitPrizes(ranked, s.SplitBps, pool.Distributable())

	awardByParticipant := make(map[string]PrizeAward, len(awards))
	for _, a := range awards {
		awardByParticipant[a.ParticipantID] = a
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		for _, r := range ranked {
			updates := map[string]interface{}{"final_rank": r.Rank}
			if a, ok := awardByParticipant[r.ParticipantID]; ok {
				updates["prize_amount"] = a.Amount
			}
			if err := tx.Model(&models.Participant{}).
				Where("id = ?", r.ParticipantID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist final ranks: %w", err)
	}

	log.Printf("🏆 Finalized event %s: %d ranked, %d awards, pool %d", eventID, len(ranked), len(awards), pool.Distributable())
	s.Audit.RecordAsync(models.AuditLog{
		EventID:     eventID,
		Action:      "winners_finalized",
		Reason:      fmt.Sprintf("%d participants ranked, %d prize awards", len(ranked), len(awards)),
		TriggeredBy: trigger.String(),
		Actor:       trigger.Identity,
	})

	return &FinalizeResult{Ranked: ranked, Metrics: metrics, Awards: awards}, nil
}

// loadVoteEntries groups votes per participant with a submission and counts
// the judge panel.
func (s *WinnerService) loadVoteEntries(eventID string) ([]ParticipantVotes, int, error) {
	var participants []models.Participant
	if err := s.DB.Where("event_id = ?", eventID).Find(&participants).Error; err != nil {
		return nil, 0, err
	}

	var votes []models.Vote
	if err := s.DB.Where("event_id = ?", eventID).Find(&votes).Error; err != nil {
		return nil, 0, err
	}

	var totalJudges int64
	if err := s.DB.Model(&models.JudgeAssignment{}).
		Where("event_id = ?", eventID).
		Count(&totalJudges).Error; err != nil {
		return nil, 0, err
	}

	scoresByParticipant := make(map[string][]int)
	for _, v := range votes {
		scoresByParticipant[v.ParticipantID] = append(scoresByParticipant[v.ParticipantID], v.Score)
	}

	entries := make([]ParticipantVotes, 0, len(participants))
	for _, p := range participants {
		if !p.HasSubmission() {
			continue // only submitted projects are rankable
		}
		entries = append(entries, ParticipantVotes{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			WalletAddress: p.WalletAddress,
			Scores:        scoresByParticipant[p.ID],
		})
	}
	return entries, int(totalJudges), nil
}

// PreviewRankings computes live rankings without persisting anything. Used
// by the leaderboard endpoint during the voting phase.
func (s *WinnerService) PreviewRankings(eventID string) (*FinalizeResult, error) {
	entries, totalJudges, err := s.loadVoteEntries(eventID)
	if err != nil {
		return nil, err
	}
	policy := DefaultRankingPolicy()
	policy.MinimumVoteThreshold = 1 // show everyone with at least one vote
	ranked, metrics := ComputeRankings(entries, totalJudges, policy)
	return &FinalizeResult{Ranked: ranked, Metrics: metrics}, nil
}
