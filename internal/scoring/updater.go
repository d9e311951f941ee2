package scoring

import (
	"github.com/loveucifer/visceral/internal/domain"
)

// Policy holds the tunable parameters of the score updater
type Policy struct {
	MinScore  float64
	MaxScore  float64
	Baseline  float64
	Increment float64
	Decrement float64
}

// DefaultPolicy returns the default scoring policy. The baseline sits well
// below the ceiling so freshly synthesized rules must earn trust through
// repeated positive feedback.
func DefaultPolicy() Policy {
	return Policy{
		MinScore:  0,
		MaxScore:  10,
		Baseline:  2,
		Increment: 1,
		Decrement: 1,
	}
}

// Updater implements the ScoreUpdater interface. Positive feedback adds a
// fixed increment clamped at MaxScore so no rule can dominate forever;
// negative feedback subtracts a fixed decrement clamped at MinScore so a
// rule can always recover. Stats counters are updated unconditionally.
type Updater struct {
	policy Policy
}

// NewUpdater creates an Updater with the given policy
func NewUpdater(policy Policy) *Updater {
	if policy.MaxScore <= policy.MinScore {
		policy = DefaultPolicy()
	}
	return &Updater{policy: policy}
}

// Apply adjusts the rule's score and stats for the given sentiment and
// returns the new score. Total for any valid rule; never fails.
func (u *Updater) Apply(rule *domain.Rule, sentiment domain.Sentiment) float64 {
	switch sentiment {
	case domain.SentimentPositive:
		rule.Stats.TimesPositive++
		rule.Score += u.policy.Increment
	case domain.SentimentNegative:
		rule.Stats.TimesNegative++
		rule.Score -= u.policy.Decrement
	}

	rule.Score = clamp(rule.Score, u.policy.MinScore, u.policy.MaxScore)
	return rule.Score
}

// Bounds returns the inclusive score bounds
func (u *Updater) Bounds() (min, max float64) {
	return u.policy.MinScore, u.policy.MaxScore
}

// Baseline returns the initial score assigned to synthesized rules
func (u *Updater) Baseline() float64 {
	return clamp(u.policy.Baseline, u.policy.MinScore, u.policy.MaxScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
