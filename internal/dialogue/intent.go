// Package dialogue implements the conversational engine behind the
// Briefline assistant: intent classification, slot filling, and the
// gather-then-execute workflow that turns chat turns into render commands.
package dialogue

import (
	"strings"
	"unicode"
)

// Intent is the discrete category of what an utterance is trying to accomplish.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentCapabilityQuery Intent = "capability_query"
	IntentGeneration      Intent = "generation_request"
	IntentInsights        Intent = "insights_request"
	IntentAcknowledgment  Intent = "acknowledgment"
	IntentGeneral         Intent = "general"
)

// Trigger-word sets, checked in fixed priority order by ClassifyIntent.
// Single words match whole tokens; multi-word entries match as substrings.
var (
	greetingKeywords = []string{
		"hello", "hi", "hey", "howdy", "greetings",
		"good morning", "good afternoon", "good evening",
	}

	capabilityKeywords = []string{
		"what can you do", "what do you do", "how do you work",
		"capabilities", "help", "what are you",
	}

	analysisKeywords = []string{
		"trend", "trends", "insight", "insights", "analysis",
		"forecast", "benchmark", "statistics", "market data",
	}

	creationKeywords = []string{
		"generate", "create", "make", "draw", "design",
		"show", "build", "produce", "render",
	}

	acknowledgmentKeywords = []string{
		"yes", "yeah", "yep", "sure", "ok", "okay",
		"correct", "right", "exactly", "thanks", "thank you",
		"sounds good", "go ahead",
		// Clarification fragments: short answers to a slot question tend to
		// lead with a preposition ("for healthcare", "about retail").
		"for", "about", "regarding",
	}
)

// ClassifyIntent maps a raw utterance to an Intent. It is a pure function:
// case-insensitive keyword matching over priority-ordered rule tables, first
// match wins. An InsightsRequest requires both an analysis keyword and a
// domain keyword; a creation keyword alone yields a GenerationRequest.
// Empty or whitespace-only input classifies as General.
func ClassifyIntent(utterance string) Intent {
	text := normalize(utterance)
	if text == "" {
		return IntentGeneral
	}

	switch {
	case matchAny(text, greetingKeywords):
		return IntentGreeting
	case matchAny(text, capabilityKeywords):
		return IntentCapabilityQuery
	case matchAny(text, analysisKeywords) && matchAny(text, domainKeywords):
		return IntentInsights
	case matchAny(text, creationKeywords):
		return IntentGeneration
	case matchAny(text, acknowledgmentKeywords):
		return IntentAcknowledgment
	default:
		return IntentGeneral
	}
}

// normalize lowercases and trims an utterance for matching.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// matchAny reports whether any keyword from the set occurs in text.
// The text must already be normalized.
func matchAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			return true
		}
	}
	return false
}

// containsKeyword tests a single keyword. Keywords carrying separators of
// their own ("market data", "e-commerce") are substring matches, since
// tokenization would split them; plain words must match a whole token so
// that "hi" does not fire inside "this".
func containsKeyword(text, kw string) bool {
	if strings.ContainsFunc(kw, isTokenSeparator) {
		return strings.Contains(text, kw)
	}
	found := false
	tokens(text)(func(token string) bool {
		if token == kw {
			found = true
			return false
		}
		return true
	})
	return found
}

// isTokenSeparator reports whether a rune splits tokens.
func isTokenSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// tokens yields the alphanumeric tokens of a normalized string.
func tokens(text string) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		fields := strings.FieldsFunc(text, isTokenSeparator)
		for _, f := range fields {
			if !yield(f) {
				return
			}
		}
	}
}
