// ABOUTME: Maps Alexa requests onto activities for the turn runner
// ABOUTME: The utterance intent becomes a message, everything else an event

package alexa

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/alexa-bridge/internal/activity"
)

const amazonPrefix = "AMAZON."

// Converter turns request envelopes into activities.
type Converter struct {
	// UtteranceIntent is the catch-all intent whose slot carries free text.
	UtteranceIntent string
	// UtteranceSlot is the slot name holding the text.
	UtteranceSlot string
}

// ToActivity converts env. Unknown request types are an error.
func (c Converter) ToActivity(env *RequestEnvelope) (*activity.Activity, error) {
	req := env.Request
	act := &activity.Activity{
		ID:           req.RequestID,
		ChannelID:    activity.ChannelAlexa,
		ServiceURL:   env.Context.System.APIEndpoint,
		Locale:       req.Locale,
		From:         activity.ChannelAccount{ID: env.Session.User.UserID, Role: "user"},
		Recipient:    activity.ChannelAccount{ID: env.Session.Application.ApplicationID, Role: "bot"},
		Conversation: activity.ConversationAccount{ID: env.Session.SessionID},
	}

	switch req.Type {
	case LaunchRequest, SessionEndedRequest:
		value, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		act.Type = activity.TypeEvent
		act.Name = req.Type
		act.Value = value

	case IntentRequest:
		if req.Intent == nil {
			return nil, fmt.Errorf("%w: intent request without intent", ErrInvalidRequest)
		}
		if req.Intent.Name == c.UtteranceIntent {
			act.Type = activity.TypeMessage
			act.Text = req.Intent.Slots[c.UtteranceSlot].Value
			return act, nil
		}
		value, err := json.Marshal(req.Intent)
		if err != nil {
			return nil, fmt.Errorf("encoding intent: %w", err)
		}
		act.Type = activity.TypeEvent
		act.Name = strings.TrimPrefix(req.Intent.Name, amazonPrefix)
		act.Value = value

	default:
		return nil, fmt.Errorf("%w: unsupported request type %q", ErrInvalidRequest, req.Type)
	}
	return act, nil
}
