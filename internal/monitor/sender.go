// ABOUTME: Routes proactive sends to the sender that owns the target's channel
// ABOUTME: Matrix rooms go through the Matrix bridge, everything else through the connector

package monitor

import (
	"context"
	"fmt"

	"github.com/2389/alexa-bridge/internal/activity"
)

// ChannelSenders is a Sender that dispatches by ConversationReference.ChannelID.
type ChannelSenders struct {
	byChannel map[string]Sender
	fallback  Sender
}

// NewChannelSenders creates a router that uses fallback for unregistered channels.
func NewChannelSenders(fallback Sender) *ChannelSenders {
	return &ChannelSenders{
		byChannel: make(map[string]Sender),
		fallback:  fallback,
	}
}

// Register routes channelID to sender. Call before the relay is in use.
func (s *ChannelSenders) Register(channelID string, sender Sender) {
	s.byChannel[channelID] = sender
}

// SendToConversation sends through the sender registered for the reference's channel.
func (s *ChannelSenders) SendToConversation(ctx context.Context, ref activity.ConversationReference, text string) error {
	sender, ok := s.byChannel[ref.ChannelID]
	if !ok {
		sender = s.fallback
	}
	if sender == nil {
		return fmt.Errorf("no sender for channel %q", ref.ChannelID)
	}
	return sender.SendToConversation(ctx, ref, text)
}
