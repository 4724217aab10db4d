// Package reputation implements trader reputation scoring for Quantum Forge.
//
// Reputation is derived from the full review history on every submission:
// - Review count
// - Mean star rating, rounded to 2 decimal places
// - Certification tier (Bronze/Silver/Gold) unlocked at fixed thresholds
//
// Everything in this package is pure computation. Deciding whether a tier
// change triggers an on-chain credential mint is the caller's job; keeping
// I/O out of here keeps the policy independently testable.
package reputation

import "math"

// Tier represents certification levels. The zero value means uncertified.
type Tier string

const (
	TierNone   Tier = ""
	TierBronze Tier = "Bronze"
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
)

// Level returns the tier's position in the ordering None < Bronze < Silver < Gold.
func (t Tier) Level() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier value.
func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierBronze, TierSilver, TierGold:
		return true
	}
	return false
}

// Stats is the aggregate over a trader's review history.
type Stats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"` // 0-5, rounded to 2 decimal places
}

// ComputeStats computes the review count and mean rating from the full set
// of ratings for a trader. The average is 0 for an empty history and is
// rounded to 2 decimal places otherwise. Always recomputed from the source
// of truth, never incrementally patched, so the aggregate cannot drift.
func ComputeStats(ratings []int) Stats {
	if len(ratings) == 0 {
		return Stats{}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	avg := float64(sum) / float64(len(ratings))
	return Stats{
		Count:   len(ratings),
		Average: math.Round(avg*100) / 100,
	}
}

// Certification thresholds.
const (
	GoldMinReviews   = 20
	GoldMinAverage   = 4.5
	SilverMinReviews = 10
	SilverMinAverage = 4.0
	BronzeMinReviews = 5
	BronzeMinAverage = 4.0
)

// DecideTier evaluates the certification thresholds highest-first and
// returns the tier the trader should hold given stats and their current
// tier.
//
// The branching deliberately mirrors the production rule set, including its
// asymmetry: a trader already at Gold is held at Gold by the Silver and
// Bronze branches even if their average has slipped below the Gold bar,
// but falls straight to None once no positive branch matches at all.
// Whether that stickiness is intentional is an open question upstream;
// do not "fix" it here without changing the tests that pin it.
func DecideTier(s Stats, current Tier) Tier {
	switch {
	case s.Count >= GoldMinReviews && s.Average >= GoldMinAverage:
		return TierGold

	case s.Count >= SilverMinReviews && s.Average >= SilverMinAverage:
		if current == TierGold {
			return TierGold
		}
		return TierSilver

	case s.Count >= BronzeMinReviews && s.Average >= BronzeMinAverage:
		if current == TierGold || current == TierSilver {
			return current
		}
		return TierBronze

	default:
		return TierNone
	}
}
