// ABOUTME: VoiceBot runs the repeat game and Q&A handoff for the Alexa channel
// ABOUTME: State machine over the user's Record, mirroring traffic to the monitor relay

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/knowledge"
	"github.com/2389/alexa-bridge/internal/monitor"
	"github.com/2389/alexa-bridge/internal/state"
)

// DefaultRepeatTurns is the turn count at which the bot stops repeating.
const DefaultRepeatTurns = 4

// Event names the voice bot reacts to.
const (
	EventLaunch = "LaunchRequest"
	EventStop   = "StopIntent"
)

// Mode is the conversational state derived from a Record.
type Mode int

// Modes of the voice bot, in the order a conversation moves through them.
const (
	AwaitingName Mode = iota
	RepeatMode
	PromptForQuestion
	QAMode
)

func (m Mode) String() string {
	switch m {
	case AwaitingName:
		return "awaiting_name"
	case RepeatMode:
		return "repeat"
	case PromptForQuestion:
		return "prompt_for_question"
	case QAMode:
		return "qa"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeOf classifies rec against the repeat threshold.
func ModeOf(rec *state.Record, threshold int) Mode {
	switch {
	case !rec.HasName():
		return AwaitingName
	case rec.TurnCount < threshold:
		return RepeatMode
	case rec.TurnCount == threshold:
		return PromptForQuestion
	default:
		return QAMode
	}
}

// VoiceBotOptions configures a VoiceBot.
type VoiceBotOptions struct {
	Storage     state.Storage
	Knowledge   knowledge.Base
	Relay       *monitor.Relay
	Catalog     *Catalog
	RepeatTurns int
	Logger      *slog.Logger
}

// VoiceBot handles turns from the voice channel.
type VoiceBot struct {
	storage     state.Storage
	kb          knowledge.Base
	relay       *monitor.Relay
	catalog     *Catalog
	repeatTurns int
	logger      *slog.Logger
}

// NewVoiceBot creates a VoiceBot. Missing options get defaults.
func NewVoiceBot(opts VoiceBotOptions) *VoiceBot {
	if opts.Storage == nil {
		opts.Storage = state.NewMemoryStorage()
	}
	if opts.Knowledge == nil {
		opts.Knowledge = knowledge.None{}
	}
	if opts.Relay == nil {
		opts.Relay = monitor.NewRelay(nil, 0, opts.Logger)
	}
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog("es")
	}
	if opts.RepeatTurns <= 0 {
		opts.RepeatTurns = DefaultRepeatTurns
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &VoiceBot{
		storage:     opts.Storage,
		kb:          opts.Knowledge,
		relay:       opts.Relay,
		catalog:     opts.Catalog,
		repeatTurns: opts.RepeatTurns,
		logger:      opts.Logger.With("component", "voicebot"),
	}
}

// OnTurn dispatches by activity type and saves the user's record afterwards.
func (b *VoiceBot) OnTurn(ctx context.Context, tc *TurnContext) error {
	act := tc.Activity
	acc := state.NewAccessor(b.storage, state.KeyFor(act.ChannelID, act.From.ID))

	var err error
	switch act.Type {
	case activity.TypeMessage:
		err = b.onMessage(ctx, tc, acc)
	case activity.TypeEvent:
		err = b.onEvent(ctx, tc, acc)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	return acc.SaveChanges(ctx)
}

func (b *VoiceBot) onMessage(ctx context.Context, tc *TurnContext, acc *state.Accessor) error {
	act := tc.Activity
	b.relay.Relay(ctx, monitor.FormatUserSaid(act.Locale, act.Text))

	msgs := b.catalog.For(act.Locale)
	text := strings.TrimSpace(act.Text)

	rec, err := acc.Get(ctx)
	if err != nil {
		return err
	}

	if isGoodbye(text) {
		reply := msgs.FarewellTo(rec.DisplayName)
		acc.Reset()
		b.logger.Info("conversation reset", "key", acc.Key())
		return b.reply(ctx, tc, reply, activity.IgnoringInput)
	}

	// Nothing to repeat or answer; ask again without advancing.
	if text == "" {
		return b.reply(ctx, tc, msgs.Greeting(rec.DisplayName, rec.TurnCount >= b.repeatTurns), activity.ExpectingInput)
	}

	mode := ModeOf(rec, b.repeatTurns)

	var reply string
	switch mode {
	case AwaitingName:
		rec.DisplayName = strings.ToLower(text)
		reply = fmt.Sprintf(msgs.Thanks, text)
	case RepeatMode:
		reply = fmt.Sprintf(msgs.Repeat, rec.DisplayName, text)
	case PromptForQuestion:
		reply = fmt.Sprintf(msgs.Bored, rec.DisplayName)
	case QAMode:
		reply, err = b.answer(ctx, text, rec.DisplayName, msgs)
		if err != nil {
			return err
		}
	}

	rec.TurnCount++
	b.logger.Debug("message handled", "key", acc.Key(), "mode", mode.String(), "turn_count", rec.TurnCount)

	return b.reply(ctx, tc, reply, activity.ExpectingInput)
}

func (b *VoiceBot) answer(ctx context.Context, question, name string, msgs *Messages) (string, error) {
	answers, err := b.kb.Query(ctx, question)
	if err != nil {
		return "", fmt.Errorf("querying knowledge base: %w", err)
	}
	if len(answers) == 0 {
		return fmt.Sprintf(msgs.NoAnswer, name), nil
	}
	return answers[0].Text, nil
}

func (b *VoiceBot) onEvent(ctx context.Context, tc *TurnContext, acc *state.Accessor) error {
	act := tc.Activity
	b.relay.Relay(ctx, monitor.FormatEvent(act.Value))

	msgs := b.catalog.For(act.Locale)

	switch act.Name {
	case EventLaunch:
		rec, err := acc.Get(ctx)
		if err != nil {
			return err
		}
		greeting := msgs.Greeting(rec.DisplayName, rec.TurnCount >= b.repeatTurns)
		return tc.SendText(ctx, greeting, activity.ExpectingInput)

	case EventStop:
		return tc.SendText(ctx, msgs.Stop, activity.IgnoringInput)
	}

	return tc.SendText(ctx, fmt.Sprintf(msgs.EventReceived, act.Name), "")
}

// reply mirrors the reply to the monitor and sends it.
func (b *VoiceBot) reply(ctx context.Context, tc *TurnContext, text string, hint activity.InputHint) error {
	b.relay.Relay(ctx, monitor.FormatBotSaid(text))
	return tc.SendText(ctx, text, hint)
}
