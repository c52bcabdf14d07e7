// ABOUTME: MonitorBot answers every non-voice channel with an echo
// ABOUTME: The activation phrase registers the conversation as the monitor target

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/monitor"
)

// DefaultActivationPhrase turns a chat conversation into the monitor target.
const DefaultActivationPhrase = "monitor alexa"

// MonitorBot handles chat channels.
type MonitorBot struct {
	relay  *monitor.Relay
	phrase string
	logger *slog.Logger
}

// NewMonitorBot creates a MonitorBot that registers targets on relay.
func NewMonitorBot(relay *monitor.Relay, phrase string, logger *slog.Logger) *MonitorBot {
	if phrase == "" {
		phrase = DefaultActivationPhrase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorBot{
		relay:  relay,
		phrase: strings.ToLower(strings.TrimSpace(phrase)),
		logger: logger.With("component", "monitorbot"),
	}
}

// OnTurn handles messages and member-added updates.
func (b *MonitorBot) OnTurn(ctx context.Context, tc *TurnContext) error {
	switch tc.Activity.Type {
	case activity.TypeMessage:
		return b.onMessage(ctx, tc)
	case activity.TypeConversationUpdate:
		return b.onMembersAdded(ctx, tc)
	}
	return nil
}

func (b *MonitorBot) onMessage(ctx context.Context, tc *TurnContext) error {
	act := tc.Activity

	if strings.ToLower(strings.TrimSpace(act.Text)) == b.phrase {
		b.relay.SetTarget(act.ConversationReference())
		return tc.SendText(ctx, "Alexa monitor is on", "")
	}

	return tc.SendText(ctx, fmt.Sprintf("Echo from MonitorBot: \"**%s**\"", act.Text), "")
}

func (b *MonitorBot) onMembersAdded(ctx context.Context, tc *TurnContext) error {
	act := tc.Activity
	for _, member := range act.MembersAdded {
		if member.ID == act.Recipient.ID {
			continue
		}
		greeting := fmt.Sprintf("Hello world - From MonitorBot! (channel: %s)", act.ChannelID)
		if err := tc.SendText(ctx, greeting, ""); err != nil {
			return err
		}
	}
	return nil
}
