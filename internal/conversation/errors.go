package conversation

import (
	"errors"
	"fmt"
)

// ErrNoContent is returned when every resolution strategy has been
// exhausted without producing any messages.
var ErrNoContent = errors.New("conversation: no content available")

// TerminalError wraps a Slack API failure that no fallback strategy can
// recover from, carrying a user-facing explanation.
type TerminalError struct {
	UserMessage string
	Err         error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("conversation: terminal: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// apiErrorCode unwraps err to its innermost cause and returns its message.
// slack-go surfaces {"ok":false,"error":"..."} responses as bare errors
// whose message is the API error code.
func apiErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// isDemotionError reports whether a Slack API error means "this strategy is
// unavailable, try the next one". Both invalid-argument and thread-not-found
// class codes demote; the upstream API is not consistent about which one it
// returns for a bad thread root.
func isDemotionError(err error) bool {
	switch apiErrorCode(err) {
	case "invalid_arguments", "invalid_ts_latest", "invalid_ts_oldest",
		"thread_not_found", "message_not_found":
		return true
	}
	return false
}

// terminalUserMessage classifies errors that no strategy can route around
// and returns the explanation shown to the invoking user.
func terminalUserMessage(err error) (string, bool) {
	switch apiErrorCode(err) {
	case "channel_not_found", "not_in_channel", "is_archived":
		return "I can't read that channel. Please add me to it and try again.", true
	case "missing_scope", "no_permission", "access_denied":
		return "I'm missing the Slack permission needed to read that conversation.", true
	case "account_inactive", "invalid_auth", "token_revoked":
		return "My Slack credentials are no longer valid. Please tell an admin.", true
	}
	return "", false
}
