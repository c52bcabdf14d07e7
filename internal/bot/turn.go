// ABOUTME: Turn context and handler types shared by the bots and channel adapters
// ABOUTME: A TurnContext carries the inbound activity and sends replies through the adapter

package bot

import (
	"context"
	"sync"

	"github.com/2389/alexa-bridge/internal/activity"
)

// SendFunc delivers an outbound activity for the channel that owns the turn.
type SendFunc func(ctx context.Context, out *activity.Activity) error

// Handler processes one turn.
type Handler interface {
	OnTurn(ctx context.Context, tc *TurnContext) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tc *TurnContext) error

// OnTurn calls f.
func (f HandlerFunc) OnTurn(ctx context.Context, tc *TurnContext) error {
	return f(ctx, tc)
}

// TurnContext is the state of a single inbound turn.
type TurnContext struct {
	Activity *activity.Activity

	send SendFunc

	mu   sync.Mutex
	sent []*activity.Activity
}

// NewTurnContext creates a turn for act whose replies go through send.
func NewTurnContext(act *activity.Activity, send SendFunc) *TurnContext {
	return &TurnContext{Activity: act, send: send}
}

// SendActivity addresses out as a reply to the inbound activity and sends it.
func (tc *TurnContext) SendActivity(ctx context.Context, out *activity.Activity) error {
	tc.Activity.ApplyReply(out)
	if err := tc.send(ctx, out); err != nil {
		return err
	}

	tc.mu.Lock()
	tc.sent = append(tc.sent, out)
	tc.mu.Unlock()
	return nil
}

// SendText sends a text reply with the given input hint.
func (tc *TurnContext) SendText(ctx context.Context, text string, hint activity.InputHint) error {
	return tc.SendActivity(ctx, activity.NewMessage(text, hint))
}

// Responses returns the activities sent so far in this turn.
func (tc *TurnContext) Responses() []*activity.Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]*activity.Activity(nil), tc.sent...)
}

// Responded reports whether anything was sent in this turn.
func (tc *TurnContext) Responded() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.sent) > 0
}
