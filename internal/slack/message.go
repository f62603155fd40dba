package slack

import (
	"strings"

	slackapi "github.com/slack-go/slack"
)

const (
	// StartVideoActionID is the block action that triggers an escalation.
	// Its value carries the task key.
	StartVideoActionID = "start_video"

	joinActionID = "join_video"
)

// BuildJoinBlocks returns Block Kit blocks for a message carrying a join link.
// When text holds no link only the text section is returned.
func BuildJoinBlocks(text, buttonLabel string) []slackapi.Block {
	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false),
			nil, nil,
		),
	}

	link := joinLink(text)
	if link == "" {
		return blocks
	}

	button := slackapi.NewButtonBlockElement(joinActionID, "", slackapi.NewTextBlockObject(slackapi.PlainTextType, buttonLabel, false, false))
	button.URL = link
	button.Style = slackapi.StylePrimary

	return append(blocks, slackapi.NewActionBlock("", button))
}

// joinLink returns the last http(s) URL in text.
func joinLink(text string) string {
	fields := strings.Fields(text)
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if strings.HasPrefix(f, "https://") || strings.HasPrefix(f, "http://") {
			return f
		}
	}
	return ""
}
