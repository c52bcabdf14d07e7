// ABOUTME: Bot Framework activity schema subset shared by every channel adapter
// ABOUTME: Defines Activity, ConversationReference and helpers for replies and proactive sends

package activity

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Type is the activity kind
type Type string

// Activity types handled by the bridge
const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeConversationUpdate Type = "conversationUpdate"
)

// InputHint tells a voice channel what to do with the microphone after speaking
type InputHint string

// Input hints understood by the Alexa adapter
const (
	ExpectingInput InputHint = "expectingInput"
	IgnoringInput  InputHint = "ignoringInput"
	AcceptingInput InputHint = "acceptingInput"
)

// Channel identifiers
const (
	ChannelAlexa    = "alexa"
	ChannelMatrix   = "matrix"
	ChannelEmulator = "emulator"
)

// ChannelAccount identifies a participant on a channel
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is one inbound or outbound unit of a turn
type Activity struct {
	Type         Type                `json:"type"`
	ID           string              `json:"id,omitempty"`
	Name         string              `json:"name,omitempty"`
	Text         string              `json:"text,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty"`
	InputHint    InputHint           `json:"inputHint,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
}

// ConversationReference is the handle needed to message a conversation outside a turn
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
}

// NewID returns a fresh activity id.
func NewID() string {
	return uuid.New().String()
}

// NewMessage builds an outbound message with the given input hint.
func NewMessage(text string, hint InputHint) *Activity {
	return &Activity{
		Type:      TypeMessage,
		Text:      text,
		InputHint: hint,
	}
}

// ConversationReference captures where this activity came from.
func (a *Activity) ConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyReply addresses out as a reply to a. The channel, service URL,
// conversation, sender, recipient and reply-to fields are overwritten;
// only a Locale or ID already set on out is kept.
func (a *Activity) ApplyReply(out *Activity) {
	out.ChannelID = a.ChannelID
	out.ServiceURL = a.ServiceURL
	out.Conversation = a.Conversation
	out.From = a.Recipient
	out.Recipient = a.From
	out.ReplyToID = a.ID
	if out.Locale == "" {
		out.Locale = a.Locale
	}
	if out.ID == "" {
		out.ID = NewID()
	}
}

// Apply addresses out to the referenced conversation for a proactive send.
func (r ConversationReference) Apply(out *Activity) {
	out.ChannelID = r.ChannelID
	out.ServiceURL = r.ServiceURL
	out.Conversation = r.Conversation
	out.From = r.Bot
	out.Recipient = r.User
	if out.Locale == "" {
		out.Locale = r.Locale
	}
	if out.ID == "" {
		out.ID = NewID()
	}
}
