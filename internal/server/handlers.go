package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/zulandar/recap/internal/conversation"
	"github.com/zulandar/recap/internal/relay"
)

// handleEvents receives Events API callbacks. URL verification is answered
// inline; mentions and home-tab opens are acknowledged immediately and
// processed in detached tasks.
func (s *Server) handleEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		challenge, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, challenge.Challenge)
		return
	case slackevents.CallbackEvent:
		s.dispatchCallback(event)
	}

	c.Status(http.StatusOK)
}

// mentionPattern matches the <@U...> tokens Slack embeds in mention text.
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// mentionWantsSummary reports whether a mention is a summarize request: a
// bare @-mention, or one whose remaining text asks for a summary.
func mentionWantsSummary(text string) bool {
	stripped := strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
	if stripped == "" {
		return true
	}
	return strings.Contains(strings.ToLower(stripped), "summar") ||
		strings.Contains(strings.ToLower(stripped), "recap")
}

func (s *Server) dispatchCallback(event slackevents.EventsAPIEvent) {
	switch inner := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if !mentionWantsSummary(inner.Text) {
			return
		}
		ref := conversation.Ref{
			ChannelID:  inner.Channel,
			Timestamp:  inner.TimeStamp,
			ThreadRoot: inner.ThreadTimeStamp,
			UserID:     inner.User,
		}
		if ref.ThreadRoot == "" {
			id := relay.Detach("mention-recent", func(ctx context.Context) error {
				return s.pipeline.RunRecent(ctx, ref)
			})
			s.logf("events: mention in %s detached as %s", ref.ChannelID, id)
			return
		}
		id := relay.Detach("mention-thread", func(ctx context.Context) error {
			return s.pipeline.Run(ctx, ref)
		})
		s.logf("events: thread mention in %s detached as %s", ref.ChannelID, id)
	case *slackevents.AppHomeOpenedEvent:
		userID := inner.User
		relay.Detach("home-tab", func(ctx context.Context) error {
			_, err := s.views.PublishViewContext(ctx, userID, homeTabView(), "")
			return err
		})
	}
}

// handleInteractions receives interactivity payloads: message actions,
// global shortcuts, and modal submissions.
func (s *Server) handleInteractions(c *gin.Context) {
	payload := c.PostForm("payload")
	if payload == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	switch callback.Type {
	case slack.InteractionTypeMessageAction:
		s.handleMessageAction(c, callback)
	case slack.InteractionTypeShortcut:
		s.handleShortcut(c, callback)
	case slack.InteractionTypeViewSubmission:
		s.handleViewSubmission(c, callback)
	default:
		c.Status(http.StatusOK)
	}
}

func (s *Server) handleMessageAction(c *gin.Context, callback slack.InteractionCallback) {
	ref := conversation.Ref{
		ChannelID:  callback.Channel.ID,
		Timestamp:  callback.Message.Timestamp,
		ThreadRoot: callback.Message.ThreadTimestamp,
		UserID:     callback.User.ID,
		ReplyCount: callback.Message.ReplyCount,
	}
	if ref.ChannelID == "" || ref.Timestamp == "" {
		s.notifyShapeError(ref.ChannelID, ref.UserID)
		c.Status(http.StatusOK)
		return
	}

	id := relay.Detach("message-action", func(ctx context.Context) error {
		return s.pipeline.Run(ctx, ref)
	})
	s.logf("interactions: message action on %s/%s detached as %s", ref.ChannelID, ref.Timestamp, id)
	c.Status(http.StatusOK)
}

func (s *Server) handleShortcut(c *gin.Context, callback slack.InteractionCallback) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.ackTimeout)
	defer cancel()

	if _, err := s.views.OpenViewContext(ctx, callback.TriggerID, channelPickerModal()); err != nil {
		s.logf("interactions: opening channel picker: %v", err)
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleViewSubmission(c *gin.Context, callback slack.InteractionCallback) {
	if callback.View.CallbackID != pickerCallbackID {
		c.Status(http.StatusOK)
		return
	}

	channelID := selectedConversation(callback)
	if channelID == "" {
		c.JSON(http.StatusOK, gin.H{
			"response_action": "errors",
			"errors": gin.H{
				pickerBlockID: "Pick a channel to summarize.",
			},
		})
		return
	}

	ref := conversation.Ref{ChannelID: channelID, UserID: callback.User.ID}
	id := relay.Detach("picker-submit", func(ctx context.Context) error {
		return s.pipeline.RunRecent(ctx, ref)
	})
	s.logf("interactions: picker submit for %s detached as %s", channelID, id)
	c.Status(http.StatusOK)
}

func selectedConversation(callback slack.InteractionCallback) string {
	if callback.View.State == nil {
		return ""
	}
	block, ok := callback.View.State.Values[pickerBlockID]
	if !ok {
		return ""
	}
	return block[pickerActionID].SelectedConversation
}

// handleCommand receives the /recap slash command and summarizes the
// invoking channel's recent history.
func (s *Server) handleCommand(c *gin.Context) {
	command, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if command.ChannelID == "" {
		c.Status(http.StatusOK)
		return
	}

	ref := conversation.Ref{ChannelID: command.ChannelID, UserID: command.UserID}
	id := relay.Detach("slash-command", func(ctx context.Context) error {
		return s.pipeline.RunRecent(ctx, ref)
	})
	s.logf("commands: %s in %s detached as %s", command.Command, command.ChannelID, id)

	c.JSON(http.StatusOK, gin.H{
		"response_type": "ephemeral",
		"text":          "On it. I'll post a summary here shortly.",
	})
}

func (s *Server) notifyShapeError(channelID, userID string) {
	if s.notifier == nil || channelID == "" || userID == "" {
		return
	}
	relay.Detach("shape-notice", func(ctx context.Context) error {
		return s.notifier.PostEphemeral(ctx, channelID, userID,
			"I couldn't tell which message that was. Try the action again.", "")
	})
}

func (s *Server) logf(format string, args ...any) {
	if !s.verbose {
		return
	}
	fmt.Fprintf(s.out, format+"\n", args...)
}
