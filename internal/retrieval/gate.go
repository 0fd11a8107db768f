// Package retrieval decides when the document index is consulted and runs
// the semantic search itself. The gate keeps cheap small talk away from the
// embedding path; the retriever turns a gated query into ranked excerpts.
package retrieval

import (
	"regexp"
	"strings"
)

// builtinKeywords cover the question categories that benefit from manual
// and datasheet context. Single tokens match as word prefixes ("install"
// catches "installing"); phrases match as substrings.
var builtinKeywords = []string{
	// installation
	"install", "mount", "wall", "ceiling", "duct", "drain", "hose",
	"clearance", "wiring", "electrical", "placement",
	// troubleshooting
	"error", "fault", "alarm", "leak", "noise", "noisy", "ice", "frost",
	"freez", "not working", "stopped", "blink", "display", "troubleshoot",
	"problem", "broken",
	// maintenance
	"filter", "clean", "service", "maintenance", "maintain", "descal",
	"replace",
	// warranty and support
	"warranty", "guarantee", "return", "repair", "spare part",
	// technical specification
	"spec", "capacity", "airflow", "decibel", "watt", "power consumption",
	"voltage", "refrigerant", "defrost", "operating temperature",
	"humidity range", "dimension", "weight", "datasheet", "manual",
}

// modelTokenRe matches product model designations such as sp500c or cdf-40:
// letters followed by digits, with an optional dash.
var modelTokenRe = regexp.MustCompile(`\b[a-z]{2,}-?\d[0-9a-z]*\b`)

// wordSplitRe splits normalized text into candidate words.
var wordSplitRe = regexp.MustCompile(`[a-z0-9-]+`)

// Gate decides whether a user message should trigger document retrieval.
type Gate struct {
	enabled bool
	words   []string // matched as word prefixes
	phrases []string // matched as substrings
}

// NewGate builds a gate. extra keywords from configuration are merged with
// the built-in sets. When enabled is false the gate never fires.
func NewGate(enabled bool, extra []string) *Gate {
	g := &Gate{enabled: enabled}
	for _, kw := range append(append([]string{}, builtinKeywords...), extra...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		switch {
		case kw == "":
		case strings.ContainsRune(kw, ' '):
			g.phrases = append(g.phrases, kw)
		default:
			g.words = append(g.words, kw)
		}
	}
	return g
}

// ShouldRetrieve reports whether message warrants a document search.
// Pure function of the message text.
func (g *Gate) ShouldRetrieve(message string) bool {
	if !g.enabled {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return false
	}
	for _, p := range g.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	for _, word := range wordSplitRe.FindAllString(text, -1) {
		for _, kw := range g.words {
			if strings.HasPrefix(word, kw) {
				return true
			}
		}
	}
	return modelTokenRe.MatchString(text)
}
