package domain

import (
	"time"
)

// Sentiment represents the polarity of a feedback event
type Sentiment string

const (
	// SentimentPositive indicates the user accepted the response
	SentimentPositive Sentiment = "positive"
	// SentimentNegative indicates the user rejected the response
	SentimentNegative Sentiment = "negative"
)

// RuleStats tracks how a rule has performed over its lifetime
type RuleStats struct {
	TimesMatched  int64 `json:"times_matched" yaml:"times_matched"`
	TimesPositive int64 `json:"times_positive" yaml:"times_positive"`
	TimesNegative int64 `json:"times_negative" yaml:"times_negative"`
}

// Rule represents a symbolic answer rule: a keyword condition over queries
// plus the response returned when the condition is satisfied. Pattern and
// Response are immutable after creation; only Score and Stats change, and
// only through the score updater.
type Rule struct {
	ID        string    `json:"id" yaml:"id" validate:"required,uuid4" example:"123e4567-e89b-12d3-a456-426614174000"`
	Pattern   string    `json:"pattern" yaml:"pattern" validate:"required,min=1,max=512" example:"refund+policy"`
	Response  string    `json:"response" yaml:"response" validate:"required,min=1,max=16384" example:"Refunds are processed within 5 business days."`
	Score     float64   `json:"score" yaml:"score" example:"2.0"`
	Stats     RuleStats `json:"stats" yaml:"stats"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	LastUsed  time.Time `json:"last_used" yaml:"last_used"`
}

// MatchResult represents the outcome of resolving a query against the rule set
type MatchResult struct {
	RuleID    string    `json:"rule_id"`
	Response  string    `json:"response"`
	Score     float64   `json:"score"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnStatus describes how a conversation turn was answered or resolved
type TurnStatus string

const (
	// StatusAnsweredByRule means a symbolic rule produced the response
	StatusAnsweredByRule TurnStatus = "answered-by-rule"
	// StatusAnsweredByFallback means the language model produced the response
	StatusAnsweredByFallback TurnStatus = "answered-by-fallback"
	// StatusRuleSynthesized means feedback on this turn produced a new rule
	StatusRuleSynthesized TurnStatus = "rule-synthesized"
	// StatusFeedbackRecorded means feedback was applied without synthesis
	StatusFeedbackRecorded TurnStatus = "feedback-recorded"
)

// Turn is the controller's record of a single query/response exchange.
// It carries the exact rule reference forward from match to feedback so
// feedback is never applied against a stale re-lookup.
type Turn struct {
	ID        string     `json:"turn_id"`
	Query     string     `json:"query"`
	Response  string     `json:"response"`
	RuleID    string     `json:"rule_id,omitempty"`
	Status    TurnStatus `json:"status"`
	Resolved  bool       `json:"resolved"`
	CreatedAt time.Time  `json:"created_at"`
}

// Feedback is a transient user judgement on a prior turn. Correction is
// only meaningful with negative sentiment and triggers rule synthesis.
type Feedback struct {
	TurnID     string    `json:"turn_id" validate:"required"`
	Sentiment  Sentiment `json:"sentiment" validate:"required,oneof=positive negative"`
	Correction string    `json:"correction,omitempty" validate:"max=16384"`
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Size     int     `json:"size"`
	MaxSize  int     `json:"max_size"`
	HitRatio float64 `json:"hit_ratio"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}
