// Package relay wires the summarization pipeline: resolve the conversation
// scope, resolve author identities, call the summarizer, and deliver the
// result with a multi-level fallback.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zulandar/recap/internal/conversation"
)

const (
	// downgradeNotice prefixes a summary that could not be threaded.
	downgradeNotice = "(I couldn't reply in the original thread, so I'm posting the summary here.)\n\n"
	// digestHeader prefixes scheduled channel digests.
	digestHeader = "*Channel digest*\n\n"
	// simplifiedLimit caps the last-resort simplified payload.
	simplifiedLimit = 500
)

// Summarizer produces a summary for rendered conversation text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Poster delivers ordinary and ephemeral messages.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text, replyTo string) error
	PostEphemeral(ctx context.Context, channelID, userID, text, replyTo string) error
}

// Orchestrator runs the pipeline for one inbound action. It holds no
// per-request state; one instance serves all requests.
type Orchestrator struct {
	resolver   *conversation.Resolver
	client     conversation.SlackClient
	summarizer Summarizer
	poster     Poster
	out        io.Writer
	verbose    bool
}

// Opts holds parameters for creating an Orchestrator.
type Opts struct {
	Resolver   *conversation.Resolver
	Client     conversation.SlackClient
	Summarizer Summarizer
	Poster     Poster
	Out        io.Writer // defaults to os.Stdout
	Verbose    bool
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("relay: resolver is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("relay: slack client is required")
	}
	if opts.Summarizer == nil {
		return nil, fmt.Errorf("relay: summarizer is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("relay: poster is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Orchestrator{
		resolver:   opts.Resolver,
		client:     opts.Client,
		summarizer: opts.Summarizer,
		poster:     opts.Poster,
		out:        out,
		verbose:    opts.Verbose,
	}, nil
}

// Run executes the full pipeline for one action. Every failure path has
// already notified the invoking user (best-effort, ephemeral) by the time
// Run returns; the returned error is for the caller's logs only.
func (o *Orchestrator) Run(ctx context.Context, ref conversation.Ref) error {
	scope, err := o.resolver.Resolve(ctx, ref)
	if err != nil {
		o.notify(ctx, ref, userMessageFor(err))
		return fmt.Errorf("relay: resolve: %w", err)
	}

	summary, err := o.summarize(ctx, scope)
	if err != nil {
		o.notify(ctx, ref, "Sorry, I couldn't generate a summary right now. Please try again later.")
		return fmt.Errorf("relay: summarize: %w", err)
	}

	if err := o.deliver(ctx, ref, scope, summary); err != nil {
		o.notify(ctx, ref, "I generated a summary but couldn't post it to the channel.")
		return fmt.Errorf("relay: deliver: %w", err)
	}
	return nil
}

// RunRecent summarizes the channel's recent history without a target
// message (slash command path).
func (o *Orchestrator) RunRecent(ctx context.Context, ref conversation.Ref) error {
	scope, err := o.resolver.RecentHistory(ctx, ref.ChannelID, 0)
	if err != nil {
		o.notify(ctx, ref, userMessageFor(err))
		return fmt.Errorf("relay: recent history: %w", err)
	}
	summary, err := o.summarize(ctx, scope)
	if err != nil {
		o.notify(ctx, ref, "Sorry, I couldn't generate a summary right now. Please try again later.")
		return fmt.Errorf("relay: summarize: %w", err)
	}
	if err := o.deliver(ctx, ref, scope, summary); err != nil {
		o.notify(ctx, ref, "I generated a summary but couldn't post it to the channel.")
		return fmt.Errorf("relay: deliver: %w", err)
	}
	return nil
}

// Digest summarizes the channel's last digestWindow messages and posts the
// result as a new message with a digest header. No ephemeral reporting:
// digests have no invoking user.
func (o *Orchestrator) Digest(ctx context.Context, channelID string) error {
	const digestWindow = 50

	scope, err := o.resolver.RecentHistory(ctx, channelID, digestWindow)
	if err != nil {
		return fmt.Errorf("relay: digest %s: %w", channelID, err)
	}
	summary, err := o.summarize(ctx, scope)
	if err != nil {
		return fmt.Errorf("relay: digest %s: %w", channelID, err)
	}
	if err := o.poster.PostMessage(ctx, channelID, digestHeader+summary, ""); err != nil {
		return fmt.Errorf("relay: digest %s: %w", channelID, err)
	}
	return nil
}

// summarize renders the scope and calls the summarization API.
func (o *Orchestrator) summarize(ctx context.Context, scope conversation.Scope) (string, error) {
	names := conversation.ResolveIdentities(ctx, o.client, conversation.AuthorIDs(scope))
	prompt := renderPrompt(scope, names)
	if o.verbose {
		fmt.Fprintf(o.out, "relay: prompt %d chars, scope %s\n", len(prompt), scope.Kind)
	}
	return o.summarizer.Summarize(ctx, prompt)
}

// deliver posts the summary, cascading through fallback targets:
//
//  1. the scope's recorded reply target,
//  2. for thread scopes, the original target timestamp,
//  3. a new top-level message prefixed with a downgrade notice,
//  4. a truncated simplified payload.
//
// Only when every avenue fails does deliver return an error.
func (o *Orchestrator) deliver(ctx context.Context, ref conversation.Ref, scope conversation.Scope, summary string) error {
	if scope.ReplyTo == "" {
		err := o.poster.PostMessage(ctx, ref.ChannelID, summary, "")
		if err == nil {
			return nil
		}
		fmt.Fprintf(o.out, "relay: plain delivery failed: %v\n", err)
		return o.deliverSimplified(ctx, ref.ChannelID, summary)
	}

	err := o.poster.PostMessage(ctx, ref.ChannelID, summary, scope.ReplyTo)
	if err == nil {
		return nil
	}
	fmt.Fprintf(o.out, "relay: threaded delivery to %s failed: %v\n", scope.ReplyTo, err)

	// Thread scopes get one retry against the original target timestamp,
	// which may differ from the root the resolver settled on.
	if scope.Kind == conversation.ScopeThread && ref.Timestamp != "" && ref.Timestamp != scope.ReplyTo {
		err = o.poster.PostMessage(ctx, ref.ChannelID, summary, ref.Timestamp)
		if err == nil {
			return nil
		}
		fmt.Fprintf(o.out, "relay: threaded delivery to original target %s failed: %v\n", ref.Timestamp, err)
	}

	err = o.poster.PostMessage(ctx, ref.ChannelID, downgradeNotice+summary, "")
	if err == nil {
		return nil
	}
	fmt.Fprintf(o.out, "relay: downgraded delivery failed: %v\n", err)

	return o.deliverSimplified(ctx, ref.ChannelID, summary)
}

// deliverSimplified makes the final attempt with a truncated payload.
func (o *Orchestrator) deliverSimplified(ctx context.Context, channelID, summary string) error {
	text := summary
	if len(text) > simplifiedLimit {
		text = text[:simplifiedLimit] + truncationMarker
	}
	if err := o.poster.PostMessage(ctx, channelID, text, ""); err != nil {
		return fmt.Errorf("all delivery attempts failed: %w", err)
	}
	return nil
}

// notify sends one best-effort ephemeral message to the invoking user. Its
// own failure is logged and never escalated.
func (o *Orchestrator) notify(ctx context.Context, ref conversation.Ref, text string) {
	if ref.UserID == "" || ref.ChannelID == "" {
		return
	}
	if err := o.poster.PostEphemeral(ctx, ref.ChannelID, ref.UserID, text, ref.ThreadRoot); err != nil {
		fmt.Fprintf(o.out, "relay: ephemeral notice failed: %v\n", err)
	}
}

// userMessageFor maps a resolution failure to the explanation shown to the
// invoking user.
func userMessageFor(err error) string {
	var term *conversation.TerminalError
	if errors.As(err, &term) && term.UserMessage != "" {
		return term.UserMessage
	}
	if errors.Is(err, conversation.ErrNoContent) {
		return "I couldn't find any messages to summarize here."
	}
	return "Sorry, something went wrong while gathering the conversation."
}
