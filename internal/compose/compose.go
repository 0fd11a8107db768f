// Package compose assembles the message list sent to the model: retrieved
// document excerpts as a source-tagged context message, trimmed conversation
// history and the current user input.
package compose

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/evapo/evapo/internal/retrieval"
)

// DefaultTokenBudget is a conservative combined budget for history plus
// document context, leaving room for the system prompt and the response.
const DefaultTokenBudget = 8000

// contextHeader introduces the retrieved excerpts to the model.
const contextHeader = "Relevant product documentation:"

// Options controls assembly.
type Options struct {
	// TokenBudget bounds the estimated size of history plus document
	// context. Zero means DefaultTokenBudget.
	TokenBudget int
}

// Assemble builds the model message list. Excerpts are rendered into one
// system-role context message, tagged with their source document, ahead of
// the conversational turns. When the budget is exceeded the oldest history
// turns go first, then the lowest-ranked excerpts; excerpts are dropped
// whole, never split. The current user input is always kept.
func Assemble(history []*ai.Message, excerpts []retrieval.Excerpt, userInput string, opts Options) []*ai.Message {
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	budget -= estimateTokens(userInput)

	// Trim oldest turns until history and the full excerpt block fit.
	excerptCost := estimateExcerpts(excerpts)
	for len(history) > 0 && estimateMessages(history)+excerptCost > budget {
		history = history[1:]
	}
	// History alone fits (or is gone); now drop lowest-ranked excerpts.
	// Retrieval returns them best first, so trim from the tail.
	historyCost := estimateMessages(history)
	for len(excerpts) > 0 && historyCost+estimateExcerpts(excerpts) > budget {
		excerpts = excerpts[:len(excerpts)-1]
	}

	msgs := make([]*ai.Message, 0, len(history)+2)
	if len(excerpts) > 0 {
		msgs = append(msgs, &ai.Message{
			Role:    ai.RoleSystem,
			Content: []*ai.Part{ai.NewTextPart(renderExcerpts(excerpts))},
		})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(userInput)))
	return msgs
}

// renderExcerpts formats excerpts with their source document, one block per
// excerpt.
func renderExcerpts(excerpts []retrieval.Excerpt) string {
	var sb strings.Builder
	sb.WriteString(contextHeader)
	for _, ex := range excerpts {
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "[Source: %s] %s", ex.Source, ex.Text)
	}
	return sb.String()
}

// estimateTokens gives a rough token count: rune count halved, which holds
// up for both English and CJK text. Non-empty text counts at least one.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 2
	if n == 0 && text != "" {
		return 1
	}
	return n
}

func estimateMessages(msgs []*ai.Message) int {
	total := 0
	for _, m := range msgs {
		for _, p := range m.Content {
			total += estimateTokens(p.Text)
		}
	}
	return total
}

func estimateExcerpts(excerpts []retrieval.Excerpt) int {
	total := estimateTokens(contextHeader)
	for _, ex := range excerpts {
		total += estimateTokens(ex.Source) + estimateTokens(ex.Text)
	}
	return total
}
