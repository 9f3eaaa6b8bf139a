package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"
)

// --- Mock Slack client ---

type mockClient struct {
	mu           sync.Mutex
	repliesCalls []*slack.GetConversationRepliesParameters
	repliesFn    func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	historyCalls []*slack.GetConversationHistoryParameters
	historyFn    func(p *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	users        map[string]*slack.User
	userErrs     map[string]error
}

func (m *mockClient) GetConversationRepliesContext(ctx context.Context, p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	m.mu.Lock()
	m.repliesCalls = append(m.repliesCalls, p)
	m.mu.Unlock()
	if m.repliesFn == nil {
		return nil, false, "", errors.New("thread_not_found")
	}
	return m.repliesFn(p)
}

func (m *mockClient) GetConversationHistoryContext(ctx context.Context, p *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	m.mu.Lock()
	m.historyCalls = append(m.historyCalls, p)
	m.mu.Unlock()
	if m.historyFn == nil {
		return nil, errors.New("channel_not_found")
	}
	return m.historyFn(p)
}

func (m *mockClient) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	if err, ok := m.userErrs[user]; ok {
		return nil, err
	}
	if u, ok := m.users[user]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user_not_found")
}

func (m *mockClient) repliesCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.repliesCalls)
}

func msg(user, text, ts string) slack.Message {
	m := slack.Message{}
	m.User = user
	m.Text = text
	m.Timestamp = ts
	return m
}

func historyResp(msgs ...slack.Message) *slack.GetConversationHistoryResponse {
	return &slack.GetConversationHistoryResponse{Messages: msgs}
}

// historyScript routes history calls by parameter shape: the target fetch is
// inclusive with limit 1, "before" sets Latest, "after" sets Oldest, and the
// recent-history fallback sets neither.
type historyScript struct {
	target func() (*slack.GetConversationHistoryResponse, error)
	before func() (*slack.GetConversationHistoryResponse, error)
	after  func() (*slack.GetConversationHistoryResponse, error)
	recent func() (*slack.GetConversationHistoryResponse, error)
}

func (s historyScript) fn(p *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	switch {
	case p.Inclusive && p.Limit == 1:
		return s.target()
	case p.Latest != "":
		return s.before()
	case p.Oldest != "":
		return s.after()
	default:
		return s.recent()
	}
}

func newTestResolver(t *testing.T, client SlackClient) *Resolver {
	t.Helper()
	r, err := NewResolver(ResolverOpts{Client: client, Out: io.Discard})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

// --- Thread strategy ---

func TestResolve_ThreadWithReplies(t *testing.T) {
	root := "1700000000.000100"
	client := &mockClient{
		repliesFn: func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			return []slack.Message{
				msg("U1", "parent", root),
				msg("U2", "first reply", "1700000001.000200"),
				msg("U1", "second reply", "1700000002.000300"),
				msg("U3", "third reply", "1700000003.000400"),
			}, false, "", nil
		},
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID:  "C1",
		Timestamp:  root,
		ThreadRoot: root,
		UserID:     "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope.Kind != ScopeThread {
		t.Fatalf("Kind = %v, want thread", scope.Kind)
	}
	if len(scope.Messages) != 4 {
		t.Errorf("len(Messages) = %d, want 4", len(scope.Messages))
	}
	if scope.ReplyTo != root {
		t.Errorf("ReplyTo = %q, want thread root %q", scope.ReplyTo, root)
	}
	if scope.Messages[0].Text != "parent" {
		t.Errorf("Messages[0].Text = %q, want parent first", scope.Messages[0].Text)
	}
}

func TestResolve_ThreadWithoutReplies_Demotes(t *testing.T) {
	root := "1700000000.000100"
	client := &mockClient{
		repliesFn: func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			// Only the root itself: not a real thread.
			return []slack.Message{msg("U1", "lonely parent", root)}, false, "", nil
		},
		historyFn: historyScript{
			target: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(msg("U1", "lonely parent", root)), nil
			},
			before: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(msg("U2", "earlier", "1699999999.000050")), nil
			},
			after: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: root, ThreadRoot: root, UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope.Kind != ScopeSingleWithContext {
		t.Fatalf("Kind = %v, want single-with-context (never an empty thread)", scope.Kind)
	}
	if len(scope.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(scope.Messages))
	}
	if !scope.Messages[1].Highlight {
		t.Error("target message not highlighted")
	}
	if scope.Messages[0].Highlight {
		t.Error("context message wrongly highlighted")
	}
}

func TestResolve_ThreadInvalidArguments_RetriesWithTarget(t *testing.T) {
	root := "1700000000.000100"
	target := "1700000005.000900"
	client := &mockClient{}
	client.repliesFn = func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
		if p.Timestamp == root {
			return nil, false, "", errors.New("invalid_arguments")
		}
		return []slack.Message{
			msg("U1", "parent", target),
			msg("U2", "reply", "1700000006.000100"),
		}, false, "", nil
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: target, ThreadRoot: root, UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := client.repliesCallCount(); got != 2 {
		t.Errorf("replies calls = %d, want exactly 2 (one retry)", got)
	}
	if scope.Kind != ScopeThread {
		t.Fatalf("Kind = %v, want thread", scope.Kind)
	}
	if scope.ReplyTo != target {
		t.Errorf("ReplyTo = %q, want retried root %q", scope.ReplyTo, target)
	}
}

func TestResolve_ThreadNotFound_TreatedAsDemotion(t *testing.T) {
	root := "1700000000.000100"
	target := "1700000005.000900"
	client := &mockClient{}
	client.repliesFn = func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
		return nil, false, "", errors.New("thread_not_found")
	}
	client.historyFn = historyScript{
		target: func() (*slack.GetConversationHistoryResponse, error) {
			return historyResp(msg("U1", "standalone", target)), nil
		},
		before: func() (*slack.GetConversationHistoryResponse, error) { return historyResp(), nil },
		after:  func() (*slack.GetConversationHistoryResponse, error) { return historyResp(), nil },
	}.fn
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: target, ThreadRoot: root, UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Retried once with the target, then demoted.
	if got := client.repliesCallCount(); got != 2 {
		t.Errorf("replies calls = %d, want 2", got)
	}
	if scope.Kind != ScopeSingleWithContext {
		t.Fatalf("Kind = %v, want single-with-context", scope.Kind)
	}
}

func TestResolve_ThreadRetryNotAttemptedWhenTargetEqualsRoot(t *testing.T) {
	root := "1700000000.000100"
	client := &mockClient{}
	client.repliesFn = func(p *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
		return nil, false, "", errors.New("invalid_arguments")
	}
	client.historyFn = historyScript{
		target: func() (*slack.GetConversationHistoryResponse, error) {
			return historyResp(msg("U1", "standalone", root)), nil
		},
		before: func() (*slack.GetConversationHistoryResponse, error) { return historyResp(), nil },
		after:  func() (*slack.GetConversationHistoryResponse, error) { return historyResp(), nil },
	}.fn
	r := newTestResolver(t, client)

	if _, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: root, ThreadRoot: root, UserID: "U9",
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := client.repliesCallCount(); got != 1 {
		t.Errorf("replies calls = %d, want 1 (no retry when alternate equals root)", got)
	}
}

// --- Single-with-context strategy ---

func TestResolve_SingleWithContext_Ordering(t *testing.T) {
	target := "1700000005.000900"
	client := &mockClient{
		historyFn: historyScript{
			target: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(msg("U1", "the target", target)), nil
			},
			before: func() (*slack.GetConversationHistoryResponse, error) {
				// conversations.history returns newest-first.
				return historyResp(
					msg("U2", "minus one", "1700000004.000100"),
					msg("U3", "minus two", "1700000003.000100"),
					msg("U2", "minus three", "1700000002.000100"),
				), nil
			},
			after: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(
					msg("U4", "plus two", "1700000007.000100"),
					msg("U1", "plus one", "1700000006.000100"),
				), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: target, UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope.Kind != ScopeSingleWithContext {
		t.Fatalf("Kind = %v, want single-with-context", scope.Kind)
	}
	if scope.ReplyTo != target {
		t.Errorf("ReplyTo = %q, want target %q", scope.ReplyTo, target)
	}
	want := []string{"minus three", "minus two", "minus one", "the target", "plus one", "plus two"}
	if len(scope.Messages) != len(want) {
		t.Fatalf("len(Messages) = %d, want %d", len(scope.Messages), len(want))
	}
	for i, w := range want {
		if scope.Messages[i].Text != w {
			t.Errorf("Messages[%d].Text = %q, want %q", i, scope.Messages[i].Text, w)
		}
	}
	for i, m := range scope.Messages {
		if m.Highlight != (m.Text == "the target") {
			t.Errorf("Messages[%d].Highlight = %v for %q", i, m.Highlight, m.Text)
		}
	}
}

func TestResolve_ContextFetchFails_FallsToRecentHistory(t *testing.T) {
	target := "1700000005.000900"
	recent := make([]slack.Message, 0, 10)
	for i := 9; i >= 0; i-- {
		recent = append(recent, msg("U1", fmt.Sprintf("recent %d", i), fmt.Sprintf("170000001%d.000100", i)))
	}
	client := &mockClient{
		historyFn: historyScript{
			target: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(msg("U1", "the target", target)), nil
			},
			before: func() (*slack.GetConversationHistoryResponse, error) {
				return nil, errors.New("fatal_error")
			},
			recent: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(recent...), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: target, UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope.Kind != ScopeRecentHistory {
		t.Fatalf("Kind = %v, want recent-history", scope.Kind)
	}
	if len(scope.Messages) != 10 {
		t.Errorf("len(Messages) = %d, want 10", len(scope.Messages))
	}
	if scope.ReplyTo != "" {
		t.Errorf("ReplyTo = %q, want empty (new message)", scope.ReplyTo)
	}
}

func TestResolve_UnrepairableTimestamp_SkipsToRecentHistory(t *testing.T) {
	client := &mockClient{
		historyFn: historyScript{
			recent: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(msg("U1", "hello", "1700000000.000100")), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	scope, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: "not-a-timestamp", UserID: "U9",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if scope.Kind != ScopeRecentHistory {
		t.Fatalf("Kind = %v, want recent-history", scope.Kind)
	}
	// The single-with-context strategy must not have issued any call with
	// the broken timestamp.
	for _, p := range client.historyCalls {
		if p.Latest != "" || p.Oldest != "" {
			t.Errorf("history call with timestamp params %+v despite unrepairable target", p)
		}
	}
}

// --- Terminal classification ---

func TestResolve_ChannelNotFound_Terminal(t *testing.T) {
	client := &mockClient{
		historyFn: func(p *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
			return nil, errors.New("channel_not_found")
		},
	}
	r := newTestResolver(t, client)

	_, err := r.Resolve(context.Background(), Ref{
		ChannelID: "C1", Timestamp: "1700000005.000900", UserID: "U9",
	})
	if err == nil {
		t.Fatal("expected terminal error")
	}
	var term *TerminalError
	if !errors.As(err, &term) {
		t.Fatalf("error type = %T, want *TerminalError", err)
	}
	if !strings.Contains(term.UserMessage, "add me") {
		t.Errorf("UserMessage = %q, want channel-membership explanation", term.UserMessage)
	}
}

func TestResolve_EmptyChannel_NoContent(t *testing.T) {
	client := &mockClient{
		historyFn: historyScript{
			recent: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	_, err := r.Resolve(context.Background(), Ref{ChannelID: "C1", UserID: "U9"})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestResolve_RequiresChannel(t *testing.T) {
	r := newTestResolver(t, &mockClient{})
	if _, err := r.Resolve(context.Background(), Ref{}); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

// --- RecentHistory ---

func TestRecentHistory_SortsChronologically(t *testing.T) {
	client := &mockClient{
		historyFn: historyScript{
			recent: func() (*slack.GetConversationHistoryResponse, error) {
				return historyResp(
					msg("U1", "newest", "1700000003.000100"),
					msg("U2", "middle", "1700000002.000100"),
					msg("U3", "oldest", "1700000001.000100"),
				), nil
			},
		}.fn,
	}
	r := newTestResolver(t, client)

	scope, err := r.RecentHistory(context.Background(), "C1", 50)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if scope.Messages[0].Text != "oldest" || scope.Messages[2].Text != "newest" {
		t.Errorf("messages not chronological: %+v", scope.Messages)
	}
}

func TestTsLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1700000001.000100", "1700000002.000100", true},
		{"1700000002.000100", "1700000001.000100", false},
		{"1700000001.000100", "1700000001.000200", true},
		{"1700000001.000100", "1700000001.000100", false},
		// 9-digit seconds sort before 10-digit seconds numerically.
		{"999999999.000001", "1700000001.000100", true},
	}
	for _, c := range cases {
		if got := tsLess(c.a, c.b); got != c.want {
			t.Errorf("tsLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
