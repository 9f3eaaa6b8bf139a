package relay

import (
	"fmt"
	"strings"

	"github.com/zulandar/recap/internal/conversation"
)

const (
	// maxPromptChars caps the rendered conversation before it is sent to
	// the summarizer.
	maxPromptChars   = 10000
	truncationMarker = "... (truncated)"

	// Highlight markers bracket the message the action targeted so the
	// summarizer can weight it.
	highlightOpen  = ">>> "
	highlightClose = " <<<"
)

// instructionPrefix selects the per-scope instruction sent ahead of the
// rendered conversation.
func instructionPrefix(kind conversation.ScopeKind) string {
	switch kind {
	case conversation.ScopeThread:
		return "Summarize this conversation thread:"
	case conversation.ScopeSingleWithContext:
		return "Summarize this message with its surrounding context:"
	default:
		return "Summarize these recent messages from a conversation:"
	}
}

// renderPrompt formats a resolved scope into the summarizer request text.
// Each message renders as "<displayName>: <text>", newline-separated in
// chronological order, with the highlighted message bracketed. The rendered
// conversation is truncated to maxPromptChars with a marker appended.
func renderPrompt(scope conversation.Scope, names map[string]string) string {
	lines := make([]string, 0, len(scope.Messages))
	for _, m := range scope.Messages {
		name := names[m.AuthorID]
		if name == "" {
			name = m.AuthorID
		}
		if name == "" {
			name = "system"
		}
		line := fmt.Sprintf("%s: %s", name, m.Text)
		if m.Highlight {
			line = highlightOpen + line + highlightClose
		}
		lines = append(lines, line)
	}

	body := strings.Join(lines, "\n")
	if len(body) > maxPromptChars {
		body = body[:maxPromptChars] + truncationMarker
	}
	return instructionPrefix(scope.Kind) + " " + body
}
