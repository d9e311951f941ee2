package domain

import "context"

// RuleStore is the persistence capability: full-snapshot load and save of
// the rule collection. Save(x) followed by Load() must return x exactly.
type RuleStore interface {
	Load(ctx context.Context) ([]Rule, error)
	Save(ctx context.Context, rules []Rule) error
}

// LanguageModel is the generative capability used for fallback answers and
// rule synthesis
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RuleRepository defines the contract for the in-memory rule aggregate.
// Every mutating operation results in exactly one durable save before it
// returns success.
type RuleRepository interface {
	Load(ctx context.Context) error
	All(ctx context.Context) []Rule
	Get(ctx context.Context, id string) (*Rule, error)
	FindMatching(ctx context.Context, query string) []Rule
	Add(ctx context.Context, rule *Rule) error
	UpdateScore(ctx context.Context, id string, sentiment Sentiment) (*Rule, error)
	MarkMatched(ctx context.Context, id string) error
	Count() int

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// RuleMatcher defines pure predicate evaluation and ranking over a rule
// snapshot. SelectBest must be deterministic for identical inputs.
type RuleMatcher interface {
	Matches(pattern, query string) bool
	SelectBest(query string, rules []Rule) *Rule
}

// ScoreUpdater adjusts a rule's score and stats in response to feedback.
// Apply is total for any valid rule and keeps the score within bounds.
type ScoreUpdater interface {
	Apply(rule *Rule, sentiment Sentiment) float64
	Bounds() (min, max float64)
	Baseline() float64
}

// RuleSynthesizer turns a correction on a failed turn into a new validated
// candidate rule via the language model capability
type RuleSynthesizer interface {
	Synthesize(ctx context.Context, query, wrongResponse, correction string) (*Rule, error)
}

// ResultCache defines the contract for caching match results by query
type ResultCache interface {
	Get(key string) (*MatchResult, bool)
	Set(key string, result *MatchResult)
	Clear()
	Stats() CacheStats

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthChecker defines the interface for system health monitoring
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}

// Validator defines the interface for input validation
type Validator interface {
	ValidateRule(rule *Rule) error
	ValidateQuery(query string) error
}
