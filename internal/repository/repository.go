package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/domain"
)

// Repository implements the RuleRepository interface with dual indexing:
// a map for O(1) id lookups and a slice preserving insertion order for
// deterministic serialization. Every mutation is a single read-modify-write
// under the lock followed by a full-snapshot save; the in-memory state is
// rolled back if the save fails, so committed state never diverges from disk.
type Repository struct {
	mu       sync.RWMutex
	rules    map[string]*domain.Rule
	ruleList []*domain.Rule

	store     domain.RuleStore
	matcher   domain.RuleMatcher
	scorer    domain.ScoreUpdater
	validator domain.Validator
}

// NewRepository creates a new Repository instance
func NewRepository(store domain.RuleStore, matcher domain.RuleMatcher, scorer domain.ScoreUpdater) *Repository {
	return &Repository{
		rules:     make(map[string]*domain.Rule),
		ruleList:  make([]*domain.Rule, 0),
		store:     store,
		matcher:   matcher,
		scorer:    scorer,
		validator: domain.NewValidator(),
	}
}

// Load populates the in-memory state from the store snapshot. A corrupt
// snapshot degrades to an empty collection with a warning instead of
// failing the process; learned rules on disk are left untouched.
func (r *Repository) Load(ctx context.Context) error {
	rules, err := r.store.Load(ctx)
	if err != nil {
		if domain.IsStoreCorrupt(err) {
			log.Warn().Err(err).Msg("Rule snapshot is corrupt, starting with an empty collection")
			rules = []domain.Rule{}
		} else {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = make(map[string]*domain.Rule, len(rules))
	r.ruleList = make([]*domain.Rule, 0, len(rules))
	for i := range rules {
		ruleCopy := rules[i]
		r.rules[ruleCopy.ID] = &ruleCopy
		r.ruleList = append(r.ruleList, &ruleCopy)
	}

	return nil
}

// All returns a snapshot copy of every rule in insertion order
func (r *Repository) All(ctx context.Context) []domain.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get retrieves a rule by its id
func (r *Repository) Get(ctx context.Context, id string) (*domain.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Rule not found",
			404,
			map[string]any{"rule_id": id},
		)
	}

	ruleCopy := *rule
	return &ruleCopy, nil
}

// FindMatching returns every rule whose pattern is satisfied by the query,
// in insertion order. Pure: delegates predicate evaluation to the matcher
// and mutates nothing.
func (r *Repository) FindMatching(ctx context.Context, query string) []domain.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Rule, 0)
	for _, rule := range r.ruleList {
		if r.matcher.Matches(rule.Pattern, query) {
			matched = append(matched, *rule)
		}
	}
	return matched
}

// Add inserts a new rule and persists the collection. Fails with
// DUPLICATE_ID on id collision and DUPLICATE_PATTERN when another rule
// already carries the exact same pattern; both indicate a defect in the
// caller and are logged loudly.
func (r *Repository) Add(ctx context.Context, rule *domain.Rule) error {
	if err := r.validator.ValidateRule(rule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		log.Error().Str("rule_id", rule.ID).Msg("Invariant violation: rule id collision on add")
		return domain.NewAppError(
			domain.ErrDuplicateID,
			"Rule id already exists",
			409,
			map[string]any{"rule_id": rule.ID},
		)
	}

	for _, existing := range r.ruleList {
		if existing.Pattern == rule.Pattern {
			log.Error().
				Str("rule_id", rule.ID).
				Str("existing_rule_id", existing.ID).
				Str("pattern", rule.Pattern).
				Msg("Invariant violation: duplicate pattern on add")
			return domain.NewAppError(
				domain.ErrDuplicatePattern,
				"Another rule already has this pattern",
				409,
				map[string]any{"rule_id": rule.ID, "existing_rule_id": existing.ID, "pattern": rule.Pattern},
			)
		}
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.LastUsed.IsZero() {
		rule.LastUsed = now
	}

	ruleCopy := *rule
	r.rules[rule.ID] = &ruleCopy
	r.ruleList = append(r.ruleList, &ruleCopy)

	if err := r.saveLocked(ctx); err != nil {
		delete(r.rules, rule.ID)
		r.ruleList = r.ruleList[:len(r.ruleList)-1]
		return err
	}

	return nil
}

// UpdateScore applies feedback to a rule's score as one atomic
// read-modify-write and persists the collection. Returns the rule after the
// adjustment. Fails with NOT_FOUND when the id is absent.
func (r *Repository) UpdateScore(ctx context.Context, id string, sentiment domain.Sentiment) (*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Rule not found",
			404,
			map[string]any{"rule_id": id},
		)
	}

	before := *rule
	r.scorer.Apply(rule, sentiment)

	if err := r.saveLocked(ctx); err != nil {
		*rule = before
		return nil, err
	}

	ruleCopy := *rule
	return &ruleCopy, nil
}

// MarkMatched records that a rule fired for a query: bumps the matched
// counter, refreshes last-used and persists the collection.
func (r *Repository) MarkMatched(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return domain.NewAppError(
			domain.ErrNotFound,
			"Rule not found",
			404,
			map[string]any{"rule_id": id},
		)
	}

	before := *rule
	rule.Stats.TimesMatched++
	rule.LastUsed = time.Now()

	if err := r.saveLocked(ctx); err != nil {
		*rule = before
		return err
	}

	return nil
}

// Count returns the number of rules currently held
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ruleList)
}

// snapshotLocked copies the ordered rule list; callers hold the lock
func (r *Repository) snapshotLocked() []domain.Rule {
	result := make([]domain.Rule, len(r.ruleList))
	for i, rule := range r.ruleList {
		result[i] = *rule
	}
	return result
}

// saveLocked persists the full collection; callers hold the write lock
func (r *Repository) saveLocked(ctx context.Context) error {
	return r.store.Save(ctx, r.snapshotLocked())
}

// HealthCheck performs a health check on the repository
func (r *Repository) HealthCheck(ctx context.Context) domain.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	status := domain.HealthStatusHealthy
	message := "Repository is operating normally"
	details := map[string]any{
		"rule_count": len(r.ruleList),
	}

	if len(r.rules) != len(r.ruleList) {
		status = domain.HealthStatusUnhealthy
		message = "Data structure inconsistency detected"
		details["map_size"] = len(r.rules)
		details["list_size"] = len(r.ruleList)
	}

	if len(r.ruleList) == 0 {
		if status == domain.HealthStatusHealthy {
			status = domain.HealthStatusDegraded
			message = "No rules loaded; every query will fall back to the model"
		}
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

// GetStats returns repository statistics
func (r *Repository) GetStats(ctx context.Context) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched, positive, negative int64
	for _, rule := range r.ruleList {
		matched += rule.Stats.TimesMatched
		positive += rule.Stats.TimesPositive
		negative += rule.Stats.TimesNegative
	}

	return map[string]any{
		"rule_count":     len(r.ruleList),
		"times_matched":  matched,
		"times_positive": positive,
		"times_negative": negative,
	}
}
