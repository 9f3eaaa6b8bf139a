package server

import "github.com/slack-go/slack"

const (
	pickerCallbackID = "recap_channel_picker"
	pickerBlockID    = "channel_block"
	pickerActionID   = "channel_select"
)

// channelPickerModal is the modal opened by the global shortcut. It holds a
// single conversations-select; the submission handler reads the choice back
// out of the view state.
func channelPickerModal() slack.ModalViewRequest {
	picker := slack.NewOptionsSelectBlockElement(slack.OptTypeConversations, nil, pickerActionID)

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: pickerCallbackID,
		Title:      slack.NewTextBlockObject("plain_text", "Summarize a channel", false, false),
		Submit:     slack.NewTextBlockObject("plain_text", "Summarize", false, false),
		Close:      slack.NewTextBlockObject("plain_text", "Cancel", false, false),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewInputBlock(
					pickerBlockID,
					slack.NewTextBlockObject("plain_text", "Channel", false, false),
					slack.NewTextBlockObject("plain_text", "I'll summarize its recent messages", false, false),
					picker,
				),
			},
		},
	}
}

func homeTabView() slack.HomeTabViewRequest {
	return slack.HomeTabViewRequest{
		Type: slack.VTHomeTab,
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewSectionBlock(
					slack.NewTextBlockObject("mrkdwn", "*Recap* condenses Slack conversations into short summaries.", false, false),
					nil, nil,
				),
				slack.NewDividerBlock(),
				slack.NewSectionBlock(
					slack.NewTextBlockObject("mrkdwn",
						"• Use the *Summarize* message action on any message\n"+
							"• Run `/recap` in a channel for a digest of recent activity\n"+
							"• Mention me in a thread and I'll summarize it",
						false, false,
					),
					nil, nil,
				),
			},
		},
	}
}
