package conversation

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/zulandar/recap/internal/timestamp"
)

const (
	// contextBefore/contextAfter bound the neighborhood fetched around a
	// single target message.
	contextBefore = 3
	contextAfter  = 2
	// recentLimit is how many messages the last-resort strategy fetches.
	recentLimit = 10
	// threadPageSize is the per-page size for paginated thread fetches.
	threadPageSize = 200
)

// Resolver determines the summarization scope for a message reference by
// trying strategies in strict order: thread, single-with-context, recent
// history. Failure of one strategy silently advances to the next; only the
// last strategy can fail the whole resolution.
type Resolver struct {
	client  SlackClient
	out     io.Writer
	verbose bool
}

// ResolverOpts holds parameters for creating a Resolver.
type ResolverOpts struct {
	Client  SlackClient
	Out     io.Writer // defaults to os.Stdout
	Verbose bool
}

// NewResolver creates a Resolver.
func NewResolver(opts ResolverOpts) (*Resolver, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("conversation: client is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Resolver{client: opts.Client, out: out, verbose: opts.Verbose}, nil
}

// outcome is a strategy's verdict on a reference.
type outcome int

const (
	resolved outcome = iota // scope is usable
	tryNext                 // strategy unavailable, advance
	failed                  // unrecoverable, stop the chain
)

// strategy is one resolution step. The fallback order is the slice in
// Resolve, not control flow.
type strategy struct {
	name string
	run  func(ctx context.Context, ref Ref) (Scope, outcome, error)
}

// Resolve tries each strategy in order and returns the first resolved
// scope. It returns a *TerminalError for failures with a user-facing
// explanation and ErrNoContent when everything is exhausted.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Scope, error) {
	if ref.ChannelID == "" {
		return Scope{}, fmt.Errorf("conversation: channel id is required")
	}

	strategies := []strategy{
		{name: "thread", run: r.resolveThread},
		{name: "single-with-context", run: r.resolveSingle},
		{name: "recent-history", run: r.resolveRecent},
	}

	for _, s := range strategies {
		scope, verdict, err := s.run(ctx, ref)
		switch verdict {
		case resolved:
			fmt.Fprintf(r.out, "conversation: strategy %s resolved (%d messages)\n", s.name, len(scope.Messages))
			return scope, nil
		case failed:
			fmt.Fprintf(r.out, "conversation: strategy %s failed terminally: %v\n", s.name, err)
			return Scope{}, err
		default:
			fmt.Fprintf(r.out, "conversation: strategy %s unavailable: %v\n", s.name, err)
		}
	}
	return Scope{}, ErrNoContent
}

// RecentHistory resolves the channel's most recent limit messages without a
// target message. Used by whole-channel requests (slash command, digests).
func (r *Resolver) RecentHistory(ctx context.Context, channelID string, limit int) (Scope, error) {
	if limit <= 0 {
		limit = recentLimit
	}
	msgs, err := r.fetchHistory(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return Scope{}, r.terminal(err)
	}
	if len(msgs) == 0 {
		return Scope{}, ErrNoContent
	}
	sortChronological(msgs)
	return Scope{Kind: ScopeRecentHistory, Messages: msgs}, nil
}

// resolveThread fetches the full reply chain when the reference carries a
// thread root. A "thread" with no actual replies demotes to the next
// strategy. When the API rejects the root, one retry with the original
// target timestamp is attempted before demoting.
func (r *Resolver) resolveThread(ctx context.Context, ref Ref) (Scope, outcome, error) {
	if ref.ThreadRoot == "" {
		return Scope{}, tryNext, fmt.Errorf("not a thread reference")
	}
	root, err := timestamp.Normalize(ref.ThreadRoot)
	if err != nil {
		return Scope{}, tryNext, fmt.Errorf("thread root %q: %w", ref.ThreadRoot, err)
	}

	msgs, err := r.fetchThread(ctx, ref.ChannelID, root)
	if err != nil {
		if msg, ok := terminalUserMessage(err); ok {
			return Scope{}, failed, &TerminalError{UserMessage: msg, Err: err}
		}
		if !isDemotionError(err) {
			return Scope{}, tryNext, err
		}
		// The API rejected the root. Retry exactly once with the target
		// timestamp, which for replies differs from the stored root.
		alt, altErr := timestamp.Normalize(ref.Timestamp)
		if altErr != nil || alt == root {
			return Scope{}, tryNext, err
		}
		if r.verbose {
			fmt.Fprintf(r.out, "conversation: thread root rejected, retrying with target %s\n", alt)
		}
		msgs, err = r.fetchThread(ctx, ref.ChannelID, alt)
		if err != nil {
			if msg, ok := terminalUserMessage(err); ok {
				return Scope{}, failed, &TerminalError{UserMessage: msg, Err: err}
			}
			return Scope{}, tryNext, err
		}
		root = alt
	}

	// A root with no replies is not really a thread. Let the
	// single-with-context strategy handle it.
	if len(msgs) <= 1 {
		return Scope{}, tryNext, fmt.Errorf("thread %s has no replies", root)
	}

	sortChronological(msgs)
	return Scope{Kind: ScopeThread, Messages: msgs, ReplyTo: root}, resolved, nil
}

// resolveSingle fetches the target message plus up to contextBefore
// preceding and contextAfter following messages, in chronological order.
func (r *Resolver) resolveSingle(ctx context.Context, ref Ref) (Scope, outcome, error) {
	ts, err := timestamp.Normalize(ref.Timestamp)
	if err != nil {
		return Scope{}, tryNext, fmt.Errorf("target %q: %w", ref.Timestamp, err)
	}

	target, err := r.fetchHistory(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		if msg, ok := terminalUserMessage(err); ok {
			return Scope{}, failed, &TerminalError{UserMessage: msg, Err: err}
		}
		return Scope{}, tryNext, err
	}
	if len(target) == 0 || target[0].Timestamp != ts {
		return Scope{}, tryNext, fmt.Errorf("target message %s not found", ts)
	}
	target[0].Highlight = true

	before, err := r.fetchHistory(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Latest:    ts,
		Limit:     contextBefore,
	})
	if err != nil {
		return Scope{}, tryNext, fmt.Errorf("context before %s: %w", ts, err)
	}
	after, err := r.fetchHistory(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ref.ChannelID,
		Oldest:    ts,
		Limit:     contextAfter,
	})
	if err != nil {
		return Scope{}, tryNext, fmt.Errorf("context after %s: %w", ts, err)
	}

	msgs := make([]Message, 0, len(before)+1+len(after))
	msgs = append(msgs, before...)
	msgs = append(msgs, target[0])
	msgs = append(msgs, after...)
	sortChronological(msgs)

	return Scope{Kind: ScopeSingleWithContext, Messages: msgs, ReplyTo: ts}, resolved, nil
}

// resolveRecent is the last resort: the channel's most recent messages,
// posted back as a new top-level message. Any failure here is terminal.
func (r *Resolver) resolveRecent(ctx context.Context, ref Ref) (Scope, outcome, error) {
	scope, err := r.RecentHistory(ctx, ref.ChannelID, recentLimit)
	if err != nil {
		return Scope{}, failed, err
	}
	return scope, resolved, nil
}

// terminal wraps a Slack error from the last-resort strategy.
func (r *Resolver) terminal(err error) error {
	if msg, ok := terminalUserMessage(err); ok {
		return &TerminalError{UserMessage: msg, Err: err}
	}
	return &TerminalError{Err: fmt.Errorf("conversation: recent history: %w", err)}
}

// fetchThread pages through conversations.replies under root.
func (r *Resolver) fetchThread(ctx context.Context, channelID, root string) ([]Message, error) {
	var all []Message
	cursor := ""
	for {
		msgs, hasMore, nextCursor, err := r.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: root,
			Limit:     threadPageSize,
			Cursor:    cursor,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			all = append(all, fromSlackMessage(m))
		}
		if !hasMore || nextCursor == "" {
			return all, nil
		}
		cursor = nextCursor
	}
}

// fetchHistory wraps conversations.history.
func (r *Resolver) fetchHistory(ctx context.Context, params *slack.GetConversationHistoryParameters) ([]Message, error) {
	resp, err := r.client.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, fromSlackMessage(m))
	}
	return msgs, nil
}

func fromSlackMessage(m slack.Message) Message {
	return Message{
		AuthorID:  m.User,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

// sortChronological orders messages oldest-first. Slack history endpoints
// return newest-first; replies return oldest-first. Sorting by the numeric
// timestamp makes the merge order-independent.
func sortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return tsLess(msgs[i].Timestamp, msgs[j].Timestamp)
	})
}

// tsLess compares two "<seconds>.<fraction>" timestamps numerically,
// falling back to string order for malformed values.
func tsLess(a, b string) bool {
	as, af, aok := splitTS(a)
	bs, bf, bok := splitTS(b)
	if !aok || !bok {
		return a < b
	}
	if as != bs {
		return as < bs
	}
	return af < bf
}

func splitTS(ts string) (sec int64, frac string, ok bool) {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	if len(parts) == 2 {
		frac = parts[1]
	}
	return sec, frac, true
}
