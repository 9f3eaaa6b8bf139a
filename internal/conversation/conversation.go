// Package conversation resolves what Slack content a summarization request
// refers to: a whole thread, a single message with its surroundings, or the
// channel's recent history as a last resort.
package conversation

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackClient abstracts the Slack API methods the resolver uses, enabling
// test mocks.
type SlackClient interface {
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// Ref identifies the message a summarization action was invoked on.
// ChannelID is always required; Timestamp is required for message-targeted
// actions and empty for whole-channel requests (slash command, digest).
type Ref struct {
	ChannelID  string
	Timestamp  string // target message timestamp
	ThreadRoot string // thread root timestamp, empty when not in a thread
	UserID     string // invoking user
	ReplyCount int    // reply count from the action payload, when known
}

// ScopeKind describes which resolution strategy produced a Scope.
type ScopeKind int

const (
	// ScopeThread covers an entire reply chain under one root.
	ScopeThread ScopeKind = iota
	// ScopeSingleWithContext covers one message plus its neighbors.
	ScopeSingleWithContext
	// ScopeRecentHistory covers the channel's most recent messages.
	ScopeRecentHistory
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeThread:
		return "thread"
	case ScopeSingleWithContext:
		return "single-with-context"
	case ScopeRecentHistory:
		return "recent-history"
	default:
		return "unknown"
	}
}

// Message is one fetched conversation message.
type Message struct {
	AuthorID  string // empty for system messages
	Text      string
	Timestamp string
	Highlight bool // true only for the message the action targeted
}

// Scope is a resolved summarization scope. Messages is non-empty and in
// chronological order. ReplyTo is the timestamp a summary reply should
// thread under; empty means post a new top-level message.
type Scope struct {
	Kind     ScopeKind
	Messages []Message
	ReplyTo  string
}
