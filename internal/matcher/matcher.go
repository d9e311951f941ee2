package matcher

import (
	"sort"
	"strings"

	"github.com/loveucifer/visceral/internal/domain"
)

// Matcher implements the RuleMatcher interface with pure keyword matching.
// A pattern of '+'-joined keywords requires every keyword to appear in the
// normalized query (AND); a whitespace-separated pattern requires any one
// of them (OR).
type Matcher struct{}

// NewMatcher creates a new Matcher instance
func NewMatcher() *Matcher {
	return &Matcher{}
}

// NormalizeQuery lowercases a query and collapses runs of whitespace to
// single spaces. Matching and cache keys both operate on this form.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Matches evaluates a rule pattern against a query. The predicate is
// deterministic and side-effect free.
func (m *Matcher) Matches(pattern, query string) bool {
	normalizedQuery := NormalizeQuery(query)
	normalizedPattern := strings.TrimSpace(strings.ToLower(pattern))
	if normalizedPattern == "" {
		return false
	}

	if strings.Contains(normalizedPattern, "+") {
		for _, keyword := range strings.Split(normalizedPattern, "+") {
			keyword = strings.TrimSpace(keyword)
			if keyword == "" || !strings.Contains(normalizedQuery, keyword) {
				return false
			}
		}
		return true
	}

	for _, keyword := range strings.Fields(normalizedPattern) {
		if strings.Contains(normalizedQuery, keyword) {
			return true
		}
	}
	return false
}

// SelectBest returns the highest-ranked rule whose pattern is satisfied by
// the query, or nil when none is. Ranking is score descending, then most
// recent last-used descending, then id ascending. The function is pure:
// identical inputs always produce identical output.
func (m *Matcher) SelectBest(query string, rules []domain.Rule) *domain.Rule {
	var matched []domain.Rule
	for i := range rules {
		if m.Matches(rules[i].Pattern, query) {
			matched = append(matched, rules[i])
		}
	}

	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		if !matched[i].LastUsed.Equal(matched[j].LastUsed) {
			return matched[i].LastUsed.After(matched[j].LastUsed)
		}
		return matched[i].ID < matched[j].ID
	})

	best := matched[0]
	return &best
}
