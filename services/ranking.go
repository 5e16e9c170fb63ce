// services/ranking.go
package services

import (
	"math"
	"sort"
)

// Scores use a 1-10 scale, so the maximum possible population variance is 25
// (hence the /25 consensus discount).
const maxScoreVariance = 25.0

// rankEpsilon: weighted scores closer than this share a rank.
const rankEpsilon = 0.01

// RankingPolicy controls how raw votes turn into rankings.
type RankingPolicy struct {
	MinimumVoteThreshold int // participants with fewer votes are excluded; 0 = use default
	WeightingEnabled     bool
	NormalizationEnabled bool
}

// DefaultRankingPolicy is what finalization uses.
func DefaultRankingPolicy() RankingPolicy {
	return RankingPolicy{WeightingEnabled: true, NormalizationEnabled: true}
}

// DefaultMinimumVoteThreshold is ceil(30% of the judge panel).
func DefaultMinimumVoteThreshold(totalJudges int) int {
	return int(math.Ceil(float64(totalJudges) * 0.3))
}

// ParticipantVotes is the ranking input for one participant with a submission.
type ParticipantVotes struct {
	ParticipantID string
	UserID        string
	WalletAddress string
	Scores        []int
}

// RankedParticipant is one ranked entry with all intermediate scores kept for
// transparency in results views.
type RankedParticipant struct {
	ParticipantID string  `json:"participant_id"`
	UserID        string  `json:"user_id"`
	WalletAddress string  `json:"wallet_address"`
	VoteCount     int     `json:"vote_count"`
	SimpleAverage float64 `json:"simple_average"`
	Weighted      float64 `json:"weighted"`
	Variance      float64 `json:"variance"`
	Consensus     float64 `json:"consensus"`
	Normalized    float64 `json:"normalized"`
	Rank          int     `json:"rank"`
	Tier          string  `json:"tier"` // winner / runner-up / participant
}

// RankingMetrics are aggregates over the ranked set.
type RankingMetrics struct {
	MeanScore              float64 `json:"mean_score"`
	MedianScore            float64 `json:"median_score"`
	StdDeviation           float64 `json:"std_deviation"`
	AvgVotesPerParticipant float64 `json:"avg_votes_per_participant"`
	RankedCount            int     `json:"ranked_count"`
}

// ComputeRankings turns per-participant vote lists into weighted, normalized,
// tie-broken rankings. Pure function, no side effects.
func ComputeRankings(entries []ParticipantVotes, totalJudges int, policy RankingPolicy) ([]RankedParticipant, RankingMetrics) {
	threshold := policy.MinimumVoteThreshold
	if threshold <= 0 {
		threshold = DefaultMinimumVoteThreshold(totalJudges)
	}

	ranked := make([]RankedParticipant, 0, len(entries))
	for _, e := range entries {
		votes := len(e.Scores)
		if votes < threshold {
			continue // not enough judge coverage to rank fairly
		}

		avg := mean(e.Scores)
		weighted := avg
		if policy.WeightingEnabled && totalJudges > 0 {
			participation := float64(votes) / float64(totalJudges)
			weighted = avg * math.Max(0.5, participation)
		}
		variance := populationVariance(e.Scores, avg)
		consensus := weighted * (1 - variance/maxScoreVariance)

		ranked = append(ranked, RankedParticipant{
			ParticipantID: e.ParticipantID,
			UserID:        e.UserID,
			WalletAddress: e.WalletAddress,
			VoteCount:     votes,
			SimpleAverage: avg,
			Weighted:      weighted,
			Variance:      variance,
			Consensus:     consensus,
		})
	}

	if policy.NormalizationEnabled {
		normalize(ranked)
	}

	// Descending weighted; ties broken by lower variance, then more votes,
	// then higher simple average.
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Weighted != b.Weighted {
			return a.Weighted > b.Weighted
		}
		if a.Variance != b.Variance {
			return a.Variance < b.Variance
		}
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		return a.SimpleAverage > b.SimpleAverage
	})

	// Dense ranks: near-equal weighted scores share the previous rank, the
	// next distinct score takes its 1-based sort position.
	for i := range ranked {
		if i > 0 && math.Abs(ranked[i-1].Weighted-ranked[i].Weighted) < rankEpsilon {
			ranked[i].Rank = ranked[i-1].Rank
		} else {
			ranked[i].Rank = i + 1
		}
		ranked[i].Tier = tierForRank(ranked[i].Rank)
	}

	return ranked, computeMetrics(ranked)
}

func tierForRank(rank int) string {
	switch {
	case rank == 1:
		return "winner"
	case rank <= 3:
		return "runner-up"
	default:
		return "participant"
	}
}

// normalize min-max scales weighted scores onto [0,10].
func normalize(ranked []RankedParticipant) {
	if len(ranked) == 0 {
		return
	}
	min, max := ranked[0].Weighted, ranked[0].Weighted
	for _, r := range ranked[1:] {
		if r.Weighted < min {
			min = r.Weighted
		}
		if r.Weighted > max {
			max = r.Weighted
		}
	}
	for i := range ranked {
		if max == min {
			ranked[i].Normalized = 10
			continue
		}
		ranked[i].Normalized = (ranked[i].Weighted - min) / (max - min) * 10
	}
}

func computeMetrics(ranked []RankedParticipant) RankingMetrics {
	m := RankingMetrics{RankedCount: len(ranked)}
	if len(ranked) == 0 {
		return m
	}

	weighted := make([]float64, len(ranked))
	var sum float64
	var votes int
	for i, r := range ranked {
		weighted[i] = r.Weighted
		sum += r.Weighted
		votes += r.VoteCount
	}
	m.MeanScore = sum / float64(len(ranked))
	m.AvgVotesPerParticipant = float64(votes) / float64(len(ranked))

	sorted := append([]float64(nil), weighted...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		m.MedianScore = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		m.MedianScore = sorted[mid]
	}

	var sq float64
	for _, w := range weighted {
		d := w - m.MeanScore
		sq += d * d
	}
	m.StdDeviation = math.Sqrt(sq / float64(len(weighted)))
	return m
}

func mean(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum int
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

func populationVariance(scores []int, avg float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sq float64
	for _, s := range scores {
		d := float64(s) - avg
		sq += d * d
	}
	return sq / float64(len(scores))
}
