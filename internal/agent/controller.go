package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/domain"
	"github.com/loveucifer/visceral/internal/matcher"
)

// DefaultMaxTurns bounds the in-memory turn history
const DefaultMaxTurns = 256

// Controller orchestrates the end-to-end turn: match against the current
// rule snapshot, answer via rule or model fallback, then resolve feedback
// into a score update or a synthesized rule. It owns the turn table that
// carries the exact rule reference from match to feedback; repository
// mutations are each atomic and write-through, so a failed turn never
// leaves half-updated state.
type Controller struct {
	repository  domain.RuleRepository
	matcher     domain.RuleMatcher
	scorer      domain.ScoreUpdater
	synthesizer domain.RuleSynthesizer
	model       domain.LanguageModel
	cache       domain.ResultCache

	turnsMu   sync.Mutex
	turns     map[string]*domain.Turn
	turnOrder []string
	maxTurns  int
}

// NewController creates a Controller wired to its capabilities
func NewController(
	repository domain.RuleRepository,
	ruleMatcher domain.RuleMatcher,
	scorer domain.ScoreUpdater,
	synthesizer domain.RuleSynthesizer,
	model domain.LanguageModel,
	cache domain.ResultCache,
) *Controller {
	return &Controller{
		repository:  repository,
		matcher:     ruleMatcher,
		scorer:      scorer,
		synthesizer: synthesizer,
		model:       model,
		cache:       cache,
		turns:       make(map[string]*domain.Turn),
		maxTurns:    DefaultMaxTurns,
	}
}

// Bootstrap seeds a default greeting rule when the repository is empty so
// a fresh install answers something symbolically on day one
func (c *Controller) Bootstrap(ctx context.Context) error {
	if c.repository.Count() > 0 {
		return nil
	}

	_, max := c.scorer.Bounds()
	rule := &domain.Rule{
		ID:        uuid.New().String(),
		Pattern:   "hello hi hey",
		Response:  "Hello! How can I assist you today?",
		Score:     max,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
	}

	log.Info().Str("rule_id", rule.ID).Msg("No rules found, seeding default greeting rule")
	return c.repository.Add(ctx, rule)
}

// Ask runs the query half of a turn: rule match first, model fallback when
// nothing matches. The returned turn is retained so later feedback can
// reference the exact response and rule that produced it.
func (c *Controller) Ask(ctx context.Context, query string) (*domain.Turn, error) {
	key := matcher.NormalizeQuery(query)

	if cached, found := c.cache.Get(key); found {
		if err := c.repository.MarkMatched(ctx, cached.RuleID); err != nil {
			return nil, err
		}
		return c.recordTurn(query, cached.Response, cached.RuleID, domain.StatusAnsweredByRule), nil
	}

	snapshot := c.repository.All(ctx)
	if best := c.matcher.SelectBest(query, snapshot); best != nil {
		if err := c.repository.MarkMatched(ctx, best.ID); err != nil {
			return nil, err
		}
		c.cache.Set(key, &domain.MatchResult{
			RuleID:    best.ID,
			Response:  best.Response,
			Score:     best.Score,
			Timestamp: time.Now(),
		})
		log.Debug().Str("rule_id", best.ID).Str("query", query).Msg("Query answered by rule")
		return c.recordTurn(query, best.Response, best.ID, domain.StatusAnsweredByRule), nil
	}

	log.Debug().Str("query", query).Msg("No rule matched, falling back to model")
	response, err := c.model.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	return c.recordTurn(query, response, "", domain.StatusAnsweredByFallback), nil
}

// Feedback resolves a prior turn. Positive feedback reinforces the rule
// that answered (fallback answers have nothing to reinforce); negative
// feedback without a correction penalizes the rule; negative feedback with
// a correction synthesizes a new rule. On any failure the turn stays
// unresolved so the caller may retry, and the repository is unchanged.
func (c *Controller) Feedback(ctx context.Context, fb domain.Feedback) (*domain.Turn, *domain.Rule, error) {
	turn, err := c.claimTurn(fb.TurnID)
	if err != nil {
		return nil, nil, err
	}

	affected, status, err := c.resolve(ctx, turn, fb)
	if err != nil {
		c.releaseTurn(fb.TurnID)
		return nil, nil, err
	}

	c.turnsMu.Lock()
	turn.Status = status
	turnCopy := *turn
	c.turnsMu.Unlock()

	return &turnCopy, affected, nil
}

func (c *Controller) resolve(ctx context.Context, turn *domain.Turn, fb domain.Feedback) (*domain.Rule, domain.TurnStatus, error) {
	switch fb.Sentiment {
	case domain.SentimentPositive:
		if turn.RuleID == "" {
			// Fallback answers are not promoted into rules without a correction
			log.Info().Str("turn_id", turn.ID).Msg("Positive feedback on fallback answer, nothing to reinforce")
			return nil, domain.StatusFeedbackRecorded, nil
		}
		rule, err := c.repository.UpdateScore(ctx, turn.RuleID, domain.SentimentPositive)
		if err != nil {
			return nil, "", err
		}
		c.cache.Clear()
		return rule, domain.StatusFeedbackRecorded, nil

	case domain.SentimentNegative:
		if fb.Correction != "" {
			return c.synthesize(ctx, turn, fb.Correction)
		}
		if turn.RuleID == "" {
			log.Info().Str("turn_id", turn.ID).Msg("Negative feedback on fallback answer without correction, nothing to learn")
			return nil, domain.StatusFeedbackRecorded, nil
		}
		rule, err := c.repository.UpdateScore(ctx, turn.RuleID, domain.SentimentNegative)
		if err != nil {
			return nil, "", err
		}
		c.cache.Clear()
		return rule, domain.StatusFeedbackRecorded, nil

	default:
		return nil, "", domain.NewAppError(
			domain.ErrValidationFailed,
			"Sentiment must be positive or negative",
			422,
			map[string]any{"sentiment": fb.Sentiment},
		)
	}
}

// synthesize turns the correction into a new rule and adds it. No
// repository change happens unless both synthesis and the add succeed.
func (c *Controller) synthesize(ctx context.Context, turn *domain.Turn, correction string) (*domain.Rule, domain.TurnStatus, error) {
	rule, err := c.synthesizer.Synthesize(ctx, turn.Query, turn.Response, correction)
	if err != nil {
		return nil, "", err
	}

	if err := c.repository.Add(ctx, rule); err != nil {
		return nil, "", err
	}
	c.cache.Clear()

	log.Info().
		Str("turn_id", turn.ID).
		Str("rule_id", rule.ID).
		Str("pattern", rule.Pattern).
		Msg("Learned a new rule from correction")

	return rule, domain.StatusRuleSynthesized, nil
}

// Turn returns a copy of a retained turn by id
func (c *Controller) Turn(turnID string) (*domain.Turn, error) {
	c.turnsMu.Lock()
	defer c.turnsMu.Unlock()

	turn, exists := c.turns[turnID]
	if !exists {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Turn not found",
			404,
			map[string]any{"turn_id": turnID},
		)
	}

	turnCopy := *turn
	return &turnCopy, nil
}

// Explain renders a human-readable account of how a turn was answered
func (c *Controller) Explain(ctx context.Context, turnID string) (string, error) {
	turn, err := c.Turn(turnID)
	if err != nil {
		return "", err
	}

	if turn.RuleID == "" {
		return "Source: model fallback\n" +
			"No rule matched this query, so the language model generated the answer " +
			"from general knowledge. Confidence is lower than a symbolic rule would carry.", nil
	}

	rule, err := c.repository.Get(ctx, turn.RuleID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"Source: symbolic rule %s\n"+
			"The query satisfied the condition %q, which is bound to the response %q.\n"+
			"Current score: %.2f (matched %d times, %d positive, %d negative ratings).",
		rule.ID, rule.Pattern, rule.Response,
		rule.Score, rule.Stats.TimesMatched, rule.Stats.TimesPositive, rule.Stats.TimesNegative,
	), nil
}

// recordTurn stores a new turn in the bounded history
func (c *Controller) recordTurn(query, response, ruleID string, status domain.TurnStatus) *domain.Turn {
	turn := &domain.Turn{
		ID:        uuid.New().String(),
		Query:     query,
		Response:  response,
		RuleID:    ruleID,
		Status:    status,
		CreatedAt: time.Now(),
	}

	c.turnsMu.Lock()
	defer c.turnsMu.Unlock()

	c.turns[turn.ID] = turn
	c.turnOrder = append(c.turnOrder, turn.ID)
	for len(c.turnOrder) > c.maxTurns {
		oldest := c.turnOrder[0]
		c.turnOrder = c.turnOrder[1:]
		delete(c.turns, oldest)
	}

	turnCopy := *turn
	return &turnCopy
}

// claimTurn marks a turn as resolved, failing if it is unknown or already
// resolved. A failed resolution releases the claim so the caller can retry.
func (c *Controller) claimTurn(turnID string) (*domain.Turn, error) {
	c.turnsMu.Lock()
	defer c.turnsMu.Unlock()

	turn, exists := c.turns[turnID]
	if !exists {
		return nil, domain.NewAppError(
			domain.ErrNotFound,
			"Turn not found",
			404,
			map[string]any{"turn_id": turnID},
		)
	}
	if turn.Resolved {
		return nil, domain.NewAppError(
			domain.ErrValidationFailed,
			"Turn already received feedback",
			422,
			map[string]any{"turn_id": turnID},
		)
	}

	turn.Resolved = true
	return turn, nil
}

func (c *Controller) releaseTurn(turnID string) {
	c.turnsMu.Lock()
	defer c.turnsMu.Unlock()

	if turn, exists := c.turns[turnID]; exists {
		turn.Resolved = false
	}
}
