package matcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loveucifer/visceral/internal/domain"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Hello World", "hello world"},
		{"collapse whitespace", "  what   is\tthe  policy ", "what is the policy"},
		{"empty", "", ""},
		{"only whitespace", "   \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeQuery(tt.input))
		})
	}
}

func TestMatcher_Matches_OR(t *testing.T) {
	m := NewMatcher()

	// Whitespace-separated keywords: any one suffices
	assert.True(t, m.Matches("hello hi hey", "hello there"))
	assert.True(t, m.Matches("hello hi hey", "well HI friend"))
	assert.False(t, m.Matches("hello hi hey", "goodbye friend"))
}

func TestMatcher_Matches_AND(t *testing.T) {
	m := NewMatcher()

	// '+'-joined keywords: every one must appear
	assert.True(t, m.Matches("refund+policy", "what is your refund policy"))
	assert.False(t, m.Matches("refund+policy", "what is your refund window"))
	assert.False(t, m.Matches("refund+policy", "what is your policy"))
}

func TestMatcher_Matches_CaseInsensitive(t *testing.T) {
	m := NewMatcher()

	assert.True(t, m.Matches("Refund+Policy", "REFUND POLICY please"))
}

func TestMatcher_Matches_EmptyPattern(t *testing.T) {
	m := NewMatcher()

	assert.False(t, m.Matches("", "anything"))
	assert.False(t, m.Matches("   ", "anything"))
}

func TestMatcher_Matches_EmptyConjunct(t *testing.T) {
	m := NewMatcher()

	// An empty conjunct would otherwise match everything
	assert.False(t, m.Matches("refund++policy", "refund policy"))
	assert.False(t, m.Matches("+refund", "refund"))
}

func TestMatcher_SelectBest_NoMatch(t *testing.T) {
	m := NewMatcher()

	rules := []domain.Rule{
		{ID: "a", Pattern: "refund", Response: "r1", Score: 5},
	}

	assert.Nil(t, m.SelectBest("shipping question", rules))
}

func TestMatcher_SelectBest_HighestScoreWins(t *testing.T) {
	m := NewMatcher()

	rules := []domain.Rule{
		{ID: "a", Pattern: "refund", Response: "low", Score: 2},
		{ID: "b", Pattern: "refund+policy", Response: "high", Score: 7},
	}

	best := m.SelectBest("refund policy", rules)
	require.NotNil(t, best)
	assert.Equal(t, "b", best.ID)
}

func TestMatcher_SelectBest_TieBreaksOnLastUsed(t *testing.T) {
	m := NewMatcher()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	rules := []domain.Rule{
		{ID: "a", Pattern: "refund", Response: "r1", Score: 5, LastUsed: older},
		{ID: "b", Pattern: "refund", Response: "r2", Score: 5, LastUsed: newer},
	}

	best := m.SelectBest("refund please", rules)
	require.NotNil(t, best)
	assert.Equal(t, "b", best.ID)
}

func TestMatcher_SelectBest_FullTieBreaksOnID(t *testing.T) {
	m := NewMatcher()

	ts := time.Now()
	rules := []domain.Rule{
		{ID: "bbb", Pattern: "refund", Response: "r1", Score: 5, LastUsed: ts},
		{ID: "aaa", Pattern: "refund", Response: "r2", Score: 5, LastUsed: ts},
	}

	best := m.SelectBest("refund", rules)
	require.NotNil(t, best)
	assert.Equal(t, "aaa", best.ID)
}

func TestMatcher_SelectBest_ReturnsCopy(t *testing.T) {
	m := NewMatcher()

	rules := []domain.Rule{
		{ID: "a", Pattern: "refund", Response: "r1", Score: 5},
	}

	best := m.SelectBest("refund", rules)
	require.NotNil(t, best)

	best.Response = "mutated"
	assert.Equal(t, "r1", rules[0].Response)
}

// Selection is a pure function of its inputs: repeated evaluation over the
// same snapshot must always pick the same rule.
func TestProperty_SelectBestDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("identical inputs select identical rules", prop.ForAll(
		func(numRules int, query string) bool {
			m := NewMatcher()

			rules := make([]domain.Rule, 0, numRules)
			for i := 0; i < numRules; i++ {
				rules = append(rules, domain.Rule{
					ID:       fmt.Sprintf("rule-%03d", i),
					Pattern:  fmt.Sprintf("keyword%d shared", i%3),
					Response: fmt.Sprintf("response %d", i),
					Score:    float64(i % 5),
				})
			}

			first := m.SelectBest(query, rules)
			for run := 0; run < 5; run++ {
				again := m.SelectBest(query, rules)
				if (first == nil) != (again == nil) {
					return false
				}
				if first != nil && first.ID != again.ID {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.OneConstOf("shared question", "keyword0", "keyword1 extra", "nothing relevant"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Matching a pattern against a query never depends on evaluation order or
// mutates the rule snapshot.
func TestProperty_MatchesPure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("matching is stable across repeated evaluation", prop.ForAll(
		func(pattern, query string) bool {
			m := NewMatcher()
			first := m.Matches(pattern, query)
			for i := 0; i < 3; i++ {
				if m.Matches(pattern, query) != first {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
