// Package deliver posts summaries back to Slack, validating thread
// timestamps before attaching reply metadata.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/zulandar/recap/internal/timestamp"
)

// ErrBadThreadTimestamp means a reply-to timestamp could not be repaired
// into the shape Slack accepts. Callers decide whether to drop the thread
// association or fall back to a plain message.
var ErrBadThreadTimestamp = errors.New("deliver: thread timestamp not repairable")

// PostClient abstracts the Slack posting methods, enabling test mocks.
type PostClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

// Poster delivers messages to Slack.
type Poster struct {
	client PostClient
}

// NewPoster creates a Poster.
func NewPoster(client PostClient) (*Poster, error) {
	if client == nil {
		return nil, fmt.Errorf("deliver: client is required")
	}
	return &Poster{client: client}, nil
}

// PostMessage posts text to a channel. When replyTo is non-empty the
// message is threaded under it; an unrepairable replyTo returns
// ErrBadThreadTimestamp instead of silently posting unthreaded.
// A rate-limited response is waited out and retried exactly once.
func (p *Poster) PostMessage(ctx context.Context, channelID, text, replyTo string) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if replyTo != "" {
		ts, err := timestamp.Normalize(replyTo)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrBadThreadTimestamp, replyTo)
		}
		options = append(options, slack.MsgOptionTS(ts))
	}

	_, _, err := p.client.PostMessageContext(ctx, channelID, options...)
	if err != nil {
		if wait, ok := rateLimitWait(err); ok {
			if werr := sleepCtx(ctx, wait); werr != nil {
				return werr
			}
			_, _, err = p.client.PostMessageContext(ctx, channelID, options...)
		}
	}
	if err != nil {
		return fmt.Errorf("deliver: post message: %w", err)
	}
	return nil
}

// PostEphemeral posts a message visible only to userID. Thread context is
// best-effort: an unrepairable replyTo is dropped silently.
func (p *Poster) PostEphemeral(ctx context.Context, channelID, userID, text, replyTo string) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if replyTo != "" {
		if ts, err := timestamp.Normalize(replyTo); err == nil {
			options = append(options, slack.MsgOptionTS(ts))
		}
	}
	if _, err := p.client.PostEphemeralContext(ctx, channelID, userID, options...); err != nil {
		return fmt.Errorf("deliver: post ephemeral: %w", err)
	}
	return nil
}

// rateLimitWait extracts the Retry-After duration from a Slack rate limit
// error.
func rateLimitWait(err error) (time.Duration, bool) {
	var rle *slack.RateLimitedError
	if !errors.As(err, &rle) {
		return 0, false
	}
	wait := rle.RetryAfter
	if wait <= 0 {
		wait = time.Second
	}
	return wait, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
