package services

import (
	"regexp"

	"github.com/sercha/retrieval-core/internal/core/domain"
)

// intentRules is checked in order; the first pattern to match wins
// (spec §4.4). Phrase sets are ported directly from the rule-based
// tagger this pipeline replaces a semantic-fallback tier for.
var intentRules = []struct {
	pattern *regexp.Regexp
	intent  domain.IntentType
}{
	{regexp.MustCompile(`(?i)\b(what is|define|definition of|meaning of|theorem|lemma)\b`), domain.IntentDefinition},
	{regexp.MustCompile(`(?i)\b(how to|steps to|procedure for|process of)\b`), domain.IntentProcedure},
	{regexp.MustCompile(`(?i)\b(summary|overview|explain chapter|summarize)\b`), domain.IntentSummary},
	{regexp.MustCompile(`(?i)\b(example|illustration|case study|walkthrough)\b`), domain.IntentExample},
}

// ClassifyIntent maps a query string to one of the fixed retrieval
// intents. It never returns an error: an unmatched query is General.
func ClassifyIntent(query string) domain.IntentType {
	for _, rule := range intentRules {
		if rule.pattern.MatchString(query) {
			return rule.intent
		}
	}
	return domain.IntentGeneral
}
