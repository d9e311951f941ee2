package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/domain"
)

// DefaultMaxAttempts bounds retries against non-deterministic model output
const DefaultMaxAttempts = 2

var (
	patternLine  = regexp.MustCompile(`(?im)^\s*pattern:\s*(.+)\s*$`)
	responseLine = regexp.MustCompile(`(?im)^\s*response:\s*(.+)\s*$`)
)

// Synthesizer implements the RuleSynthesizer interface. It asks the
// language model to distill a (query, wrong answer, correction) triple into
// a keyword pattern plus response, validates the candidate, and assigns a
// fresh id at the baseline score.
type Synthesizer struct {
	model       domain.LanguageModel
	repository  domain.RuleRepository
	scorer      domain.ScoreUpdater
	validator   domain.Validator
	maxAttempts int
}

// NewSynthesizer creates a Synthesizer. maxAttempts below 1 falls back to
// DefaultMaxAttempts.
func NewSynthesizer(model domain.LanguageModel, repository domain.RuleRepository, scorer domain.ScoreUpdater, maxAttempts int) *Synthesizer {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Synthesizer{
		model:       model,
		repository:  repository,
		scorer:      scorer,
		validator:   domain.NewValidator(),
		maxAttempts: maxAttempts,
	}
}

// Synthesize produces a new validated rule from a correction. The request
// shape is deterministic for identical inputs; the model's output is not,
// so malformed candidates are retried up to the attempt bound before
// failing with SYNTHESIS_INVALID. Model transport errors propagate as-is.
func (s *Synthesizer) Synthesize(ctx context.Context, query, wrongResponse, correction string) (*domain.Rule, error) {
	prompt := s.buildPrompt(query, wrongResponse, correction)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		reply, err := s.model.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}

		pattern, response, err := parseCandidate(reply)
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", s.maxAttempts).
				Msg("Model produced an unparseable rule candidate")
			lastErr = err
			continue
		}

		rule := &domain.Rule{
			ID:        uuid.New().String(),
			Pattern:   pattern,
			Response:  response,
			Score:     s.scorer.Baseline(),
			CreatedAt: time.Now(),
			LastUsed:  time.Now(),
		}

		if err := s.validate(ctx, rule); err != nil {
			lastErr = err
			continue
		}

		return rule, nil
	}

	return nil, domain.NewAppErrorWithCause(
		domain.ErrSynthesisInvalid,
		"No valid rule candidate after all synthesis attempts",
		422,
		lastErr,
		map[string]any{"attempts": s.maxAttempts},
	)
}

// buildPrompt renders the synthesis request. Same inputs, same prompt.
func (s *Synthesizer) buildPrompt(query, wrongResponse, correction string) string {
	return fmt.Sprintf(`Analyze this failed interaction and extract a precise symbolic rule.

The user's query was: %q
The unsatisfactory answer was: %q
The correct answer should have been: %q

Choose a condition of a few keywords from the user's query that capture its
intent. Join keywords that must ALL be present with '+'.

Respond ONLY with the rule in exactly this format:
Pattern: [condition keywords]
Response: [the provided correct answer, verbatim]`, query, wrongResponse, correction)
}

// validate rejects malformed candidates and exact pattern duplicates. The
// duplicate check is what guards against runaway rule duplication when the
// same correction is submitted repeatedly.
func (s *Synthesizer) validate(ctx context.Context, rule *domain.Rule) error {
	if err := s.validator.ValidateRule(rule); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrSynthesisInvalid,
			"Synthesized rule is malformed",
			422,
			err,
			map[string]any{"pattern": rule.Pattern},
		)
	}

	normalized := normalizePattern(rule.Pattern)
	for _, existing := range s.repository.All(ctx) {
		if normalizePattern(existing.Pattern) == normalized {
			return domain.NewAppError(
				domain.ErrSynthesisInvalid,
				"Synthesized pattern duplicates an existing rule",
				422,
				map[string]any{"pattern": rule.Pattern, "existing_rule_id": existing.ID},
			)
		}
	}

	return nil
}

// parseCandidate extracts the Pattern/Response lines from a model reply
func parseCandidate(reply string) (pattern, response string, err error) {
	patternMatch := patternLine.FindStringSubmatch(reply)
	responseMatch := responseLine.FindStringSubmatch(reply)

	if patternMatch == nil || responseMatch == nil {
		return "", "", fmt.Errorf("reply does not contain Pattern and Response lines")
	}

	pattern = strings.Trim(strings.TrimSpace(patternMatch[1]), `"[]`)
	response = strings.Trim(strings.TrimSpace(responseMatch[1]), `"[]`)

	if pattern == "" || response == "" {
		return "", "", fmt.Errorf("reply contains an empty pattern or response")
	}

	return pattern, response, nil
}

func normalizePattern(pattern string) string {
	return strings.Join(strings.Fields(strings.ToLower(pattern)), " ")
}
