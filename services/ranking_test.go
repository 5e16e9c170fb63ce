package services

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeRankingsFullParticipation(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "p1", Scores: []int{8, 9, 7}},
	}
	ranked, _ := ComputeRankings(entries, 3, DefaultRankingPolicy())
	if len(ranked) != 1 {
		t.Fatalf("expected 1 ranked participant, got %d", len(ranked))
	}
	r := ranked[0]
	if !almostEqual(r.SimpleAverage, 8.0) {
		t.Fatalf("expected average 8.0, got %f", r.SimpleAverage)
	}
	// Full participation keeps the weighted score equal to the average.
	if !almostEqual(r.Weighted, 8.0) {
		t.Fatalf("expected weighted 8.0, got %f", r.Weighted)
	}
	if !almostEqual(r.Variance, 2.0/3.0) {
		t.Fatalf("expected variance 2/3, got %f", r.Variance)
	}
	if r.Rank != 1 || r.Tier != "winner" {
		t.Fatalf("expected rank 1 winner, got rank %d tier %s", r.Rank, r.Tier)
	}
	// Sole participant: min-max normalization collapses to 10.
	if !almostEqual(r.Normalized, 10.0) {
		t.Fatalf("expected normalized 10, got %f", r.Normalized)
	}
}

func TestComputeRankingsParticipationFloor(t *testing.T) {
	policy := DefaultRankingPolicy()
	policy.MinimumVoteThreshold = 1

	entries := []ParticipantVotes{
		{ParticipantID: "p1", Scores: []int{10, 10}},
	}
	// 2 of 10 judges voted: participation 0.2 is clamped to the 0.5 floor.
	ranked, _ := ComputeRankings(entries, 10, policy)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 ranked participant, got %d", len(ranked))
	}
	if !almostEqual(ranked[0].Weighted, 5.0) {
		t.Fatalf("expected weighted 5.0 (10 * 0.5 floor), got %f", ranked[0].Weighted)
	}
}

func TestComputeRankingsMinimumVoteThreshold(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "well-covered", Scores: []int{7, 8, 9}},
		{ParticipantID: "under-covered", Scores: []int{10, 10}},
	}
	// 10 judges: threshold is ceil(10 * 0.3) = 3 votes.
	ranked, metrics := ComputeRankings(entries, 10, DefaultRankingPolicy())
	if len(ranked) != 1 {
		t.Fatalf("expected only 1 ranked participant, got %d", len(ranked))
	}
	if ranked[0].ParticipantID != "well-covered" {
		t.Fatalf("expected the 3-vote participant to survive the threshold, got %s", ranked[0].ParticipantID)
	}
	if metrics.RankedCount != 1 {
		t.Fatalf("expected RankedCount 1, got %d", metrics.RankedCount)
	}
}

func TestDefaultMinimumVoteThreshold(t *testing.T) {
	cases := []struct {
		judges int
		want   int
	}{
		{1, 1},
		{3, 1},
		{4, 2},
		{10, 3},
		{11, 4},
	}
	for _, c := range cases {
		if got := DefaultMinimumVoteThreshold(c.judges); got != c.want {
			t.Fatalf("threshold for %d judges: expected %d, got %d", c.judges, c.want, got)
		}
	}
}

func TestComputeRankingsTiedRanks(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "a", Scores: []int{8, 8}},
		{ParticipantID: "b", Scores: []int{8, 8}},
		{ParticipantID: "c", Scores: []int{6, 6}},
	}
	ranked, _ := ComputeRankings(entries, 2, DefaultRankingPolicy())
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked participants, got %d", len(ranked))
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 1 {
		t.Fatalf("expected shared rank 1 for tied scores, got %d and %d", ranked[0].Rank, ranked[1].Rank)
	}
	// The next distinct score takes its sort position, not rank 2.
	if ranked[2].Rank != 3 {
		t.Fatalf("expected rank 3 after a two-way tie, got %d", ranked[2].Rank)
	}
	if ranked[0].Tier != "winner" || ranked[1].Tier != "winner" || ranked[2].Tier != "runner-up" {
		t.Fatalf("unexpected tiers: %s %s %s", ranked[0].Tier, ranked[1].Tier, ranked[2].Tier)
	}
	if !almostEqual(ranked[0].Normalized, 10) || !almostEqual(ranked[2].Normalized, 0) {
		t.Fatalf("expected normalized bounds 10 and 0, got %f and %f", ranked[0].Normalized, ranked[2].Normalized)
	}
}

func TestComputeRankingsTieBreakByVariance(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "noisy", Scores: []int{10, 4}},
		{ParticipantID: "steady", Scores: []int{7, 7}},
	}
	// Both average 7.0 with full participation; the lower-variance entry
	// sorts first.
	ranked, _ := ComputeRankings(entries, 2, DefaultRankingPolicy())
	if ranked[0].ParticipantID != "steady" {
		t.Fatalf("expected steady scores to win the variance tie-break, got %s first", ranked[0].ParticipantID)
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 1 {
		t.Fatalf("equal weighted scores should still share a rank, got %d and %d", ranked[0].Rank, ranked[1].Rank)
	}
}

func TestComputeRankingsConsensusDiscount(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "p1", Scores: []int{10, 4}},
	}
	ranked, _ := ComputeRankings(entries, 2, DefaultRankingPolicy())
	r := ranked[0]
	// avg 7, variance ((3)^2+(-3)^2)/2 = 9, consensus = 7 * (1 - 9/25)
	if !almostEqual(r.Variance, 9.0) {
		t.Fatalf("expected variance 9, got %f", r.Variance)
	}
	if !almostEqual(r.Consensus, 7.0*(1-9.0/25.0)) {
		t.Fatalf("unexpected consensus %f", r.Consensus)
	}
}

func TestComputeRankingsEmptyInput(t *testing.T) {
	ranked, metrics := ComputeRankings(nil, 5, DefaultRankingPolicy())
	if len(ranked) != 0 {
		t.Fatalf("expected no rankings, got %d", len(ranked))
	}
	if metrics.RankedCount != 0 {
		t.Fatalf("expected RankedCount 0, got %d", metrics.RankedCount)
	}
}

func TestComputeRankingsMetrics(t *testing.T) {
	entries := []ParticipantVotes{
		{ParticipantID: "a", Scores: []int{8, 8}},
		{ParticipantID: "b", Scores: []int{6, 6}},
	}
	_, metrics := ComputeRankings(entries, 2, DefaultRankingPolicy())
	if !almostEqual(metrics.MeanScore, 7.0) {
		t.Fatalf("expected mean 7.0, got %f", metrics.MeanScore)
	}
	if !almostEqual(metrics.MedianScore, 7.0) {
		t.Fatalf("expected median 7.0, got %f", metrics.MedianScore)
	}
	if !almostEqual(metrics.AvgVotesPerParticipant, 2.0) {
		t.Fatalf("expected 2 votes per participant, got %f", metrics.AvgVotesPerParticipant)
	}
	if !almostEqual(metrics.StdDeviation, 1.0) {
		t.Fatalf("expected std deviation 1.0, got %f", metrics.StdDeviation)
	}
}
