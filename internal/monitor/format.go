// ABOUTME: Text renderings of mirrored traffic sent to the monitor conversation
// ABOUTME: One format each for inbound events, inbound messages, and bot replies

package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormatEvent renders an inbound event value as an indented JSON code block.
func FormatEvent(value json.RawMessage) string {
	body := "null"
	if len(value) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, value, "", "  "); err == nil {
			body = buf.String()
		} else {
			body = string(value)
		}
	}
	return fmt.Sprintf("Event received:\n```\n%s\n```", body)
}

// FormatUserSaid renders an inbound user message.
func FormatUserSaid(locale, text string) string {
	return fmt.Sprintf("User said (%s):\n**%s**", locale, text)
}

// FormatBotSaid renders a reply the bot sent.
func FormatBotSaid(text string) string {
	return fmt.Sprintf("Bot said:\n*%s*", text)
}
