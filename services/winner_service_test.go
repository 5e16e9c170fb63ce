package services

import "testing"

func award(id, addr string, rank int) RankedParticipant {
	return RankedParticipant{ParticipantID: id, WalletAddress: addr, Rank: rank}
}

func totalAwarded(awards []PrizeAward) int64 {
	var sum int64
	for _, a := range awards {
		sum += a.Amount
	}
	return sum
}

func TestSplitPrizesCleanPodium(t *testing.T) {
	ranked := []RankedParticipant{
		award("p1", "0xaaa", 1),
		award("p2", "0xbbb", 2),
		award("p3", "0xccc", 3),
	}
	awards := SplitPrizes(ranked, DefaultPrizeSplitBps, 100000)
	if len(awards) != 3 {
		t.Fatalf("expected 3 awards, got %d", len(awards))
	}
	if awards[0].Amount != 60000 || awards[1].Amount != 25000 || awards[2].Amount != 15000 {
		t.Fatalf("unexpected split: %d / %d / %d", awards[0].Amount, awards[1].Amount, awards[2].Amount)
	}
	if got := totalAwarded(awards); got != 100000 {
		t.Fatalf("expected full pool paid out, got %d", got)
	}
	if awards[0].Position != 1 || awards[0].PercentageBps != 6000 {
		t.Fatalf("unexpected first award metadata: position %d bps %d", awards[0].Position, awards[0].PercentageBps)
	}
}

func TestSplitPrizesTruncationLeftoverGoesToWinner(t *testing.T) {
	ranked := []RankedParticipant{
		award("p1", "0xaaa", 1),
		award("p2", "0xbbb", 2),
		award("p3", "0xccc", 3),
	}
	// 10001: per-position truncation leaves 1 unit, paid to rank 1.
	awards := SplitPrizes(ranked, DefaultPrizeSplitBps, 10001)
	if awards[0].Amount != 6001 || awards[1].Amount != 2500 || awards[2].Amount != 1500 {
		t.Fatalf("unexpected split: %d / %d / %d", awards[0].Amount, awards[1].Amount, awards[2].Amount)
	}
	if got := totalAwarded(awards); got != 10001 {
		t.Fatalf("expected full pool paid out, got %d", got)
	}
}

func TestSplitPrizesTieGroupSharesPosition(t *testing.T) {
	// Two-way tie at rank 1; rank 2 is skipped, so its share also flows to
	// the winner group via the leftover rule.
	ranked := []RankedParticipant{
		award("p1", "0xaaa", 1),
		award("p2", "0xbbb", 1),
		award("p3", "0xccc", 3),
	}
	awards := SplitPrizes(ranked, DefaultPrizeSplitBps, 100000)
	if len(awards) != 3 {
		t.Fatalf("expected 3 awards, got %d", len(awards))
	}
	// Position 1: 60000 split evenly; the 25000 for the empty position 2
	// lands on the first rank-1 award.
	if awards[0].Amount != 55000 || awards[1].Amount != 30000 {
		t.Fatalf("unexpected tie split: %d / %d", awards[0].Amount, awards[1].Amount)
	}
	if awards[2].Amount != 15000 {
		t.Fatalf("expected third place 15000, got %d", awards[2].Amount)
	}
	if got := totalAwarded(awards); got != 100000 {
		t.Fatalf("expected full pool paid out, got %d", got)
	}
}

func TestSplitPrizesOddShareRemainderToFirstOfGroup(t *testing.T) {
	ranked := []RankedParticipant{
		award("p1", "0xaaa", 1),
		award("p2", "0xbbb", 1),
	}
	// Position amount 16669*6000/10000 = 10001, an odd split across two.
	awards := SplitPrizes(ranked, []int{6000}, 16669)
	if len(awards) != 2 {
		t.Fatalf("expected 2 awards, got %d", len(awards))
	}
	// 5001 vs 5000 before the leftover; the unallocated 6668 then lands on
	// the first rank-1 award.
	if awards[1].Amount != 5000 {
		t.Fatalf("expected second of group to get the bare share 5000, got %d", awards[1].Amount)
	}
	if awards[0].Amount != 5001+16669-10001 {
		t.Fatalf("unexpected first-of-group amount %d", awards[0].Amount)
	}
	if got := totalAwarded(awards); got != 16669 {
		t.Fatalf("expected full pool paid out, got %d", got)
	}
}

func TestSplitPrizesNoWinners(t *testing.T) {
	if awards := SplitPrizes(nil, DefaultPrizeSplitBps, 100000); awards != nil {
		t.Fatalf("expected no awards without ranked participants, got %d", len(awards))
	}
	ranked := []RankedParticipant{award("p1", "0xaaa", 1)}
	if awards := SplitPrizes(ranked, DefaultPrizeSplitBps, 0); awards != nil {
		t.Fatalf("expected no awards for an empty pool, got %d", len(awards))
	}
}

func TestSplitPrizesSingleWinnerTakesEverything(t *testing.T) {
	ranked := []RankedParticipant{award("p1", "0xaaa", 1)}
	awards := SplitPrizes(ranked, DefaultPrizeSplitBps, 100000)
	if len(awards) != 1 {
		t.Fatalf("expected 1 award, got %d", len(awards))
	}
	// Unclaimed runner-up shares flow back to the sole winner.
	if awards[0].Amount != 100000 {
		t.Fatalf("expected the sole winner to receive the full pool, got %d", awards[0].Amount)
	}
}
