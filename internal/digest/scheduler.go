// Package digest schedules periodic channel digests. Each configured
// channel gets its own cron expression; when it fires, the scheduler asks
// the pipeline to summarize the channel's recent history in place.
package digest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zulandar/recap/internal/config"
)

// Scheduler fires channel digests on their cron schedules.
type Scheduler struct {
	entries []config.DigestConfig
	run     func(ctx context.Context, channelID string) error
	out     io.Writer

	wg sync.WaitGroup
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Entries []config.DigestConfig
	Run     func(ctx context.Context, channelID string) error
	Out     io.Writer // defaults to os.Stdout
}

// New creates a Scheduler. Every entry's cron expression is validated
// up-front so a typo fails at startup rather than silently never firing.
func New(opts Opts) (*Scheduler, error) {
	if opts.Run == nil {
		return nil, fmt.Errorf("digest: run func is required")
	}
	for _, entry := range opts.Entries {
		if entry.Channel == "" {
			return nil, fmt.Errorf("digest: entry is missing a channel")
		}
		if _, err := cronParser.Parse(entry.Schedule); err != nil {
			return nil, fmt.Errorf("digest: schedule %q for %s: %w", entry.Schedule, entry.Channel, err)
		}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Scheduler{
		entries: opts.Entries,
		run:     opts.Run,
		out:     out,
	}, nil
}

// Start launches one timer loop per entry. It returns immediately; the
// loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, entry := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, entry)
	}
}

// Wait blocks until all timer loops have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, entry config.DigestConfig) {
	defer s.wg.Done()

	d := nextCronDuration(entry.Schedule)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.fire(ctx, entry.Channel)
			d := nextCronDuration(entry.Schedule)
			if d <= 0 {
				return
			}
			timer.Reset(d)
		}
	}
}

// fire runs one digest. Failures are logged and the schedule keeps going;
// the next fire is a fresh attempt.
func (s *Scheduler) fire(ctx context.Context, channelID string) {
	if err := s.run(ctx, channelID); err != nil {
		fmt.Fprintf(s.out, "digest: %s: %v\n", channelID, err)
		return
	}
	fmt.Fprintf(s.out, "digest: posted to %s\n", channelID)
}
