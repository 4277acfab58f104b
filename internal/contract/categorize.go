package contract

import "strings"

// categoryKeywords is the ordered classifier table: the first group with a
// keyword found in the lower-cased question wins. Purely a display and filter
// convenience; nothing correctness-critical may depend on it.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"crypto", []string{"btc", "bitcoin", "eth", "crypto"}},
	{"finance", []string{"fed", "rate", "inflation", "market"}},
	{"politics", []string{"trump", "election", "president", "ceasefire", "russia", "ukraine"}},
	{"sports", []string{"nfl", "nba", "superbowl", "championship", "wins"}},
}

// CategoryOther is the fallback tag when no keyword group matches.
const CategoryOther = "other"

// Categorize derives an advisory category tag from a market question.
func Categorize(question string) string {
	q := strings.ToLower(question)
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(q, kw) {
				return group.category
			}
		}
	}
	return CategoryOther
}
