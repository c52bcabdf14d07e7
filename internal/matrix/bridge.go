// ABOUTME: Matrix bridge that turns room messages into activities for MonitorBot
// ABOUTME: Handles the Matrix client connection, room filtering, and outbound replies

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/bot"
	"github.com/2389/alexa-bridge/internal/config"
)

// sendTimeout bounds a single Matrix send.
const sendTimeout = 30 * time.Second

// TurnRunner runs one turn and returns the finished turn context.
type TurnRunner interface {
	Run(ctx context.Context, act *activity.Activity, send bot.SendFunc) (*bot.TurnContext, error)
}

// Client is the subset of the Matrix client API the bridge uses.
type Client interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// Bridge connects Matrix rooms to the turn runner.
type Bridge struct {
	client       Client
	sync         *mautrix.Client
	userID       id.UserID
	homeserver   string
	allowedRooms []string
	runner       TurnRunner
	logger       *slog.Logger
	startedAt    time.Time

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a Matrix bridge from configuration.
func NewBridge(cfg config.MatrixConfig, runner TurnRunner, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	b := newBridge(client, id.UserID(cfg.UserID), cfg.Homeserver, cfg.AllowedRooms, runner, logger)
	b.sync = client
	return b, nil
}

func newBridge(client Client, userID id.UserID, homeserver string, allowedRooms []string, runner TurnRunner, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:       client,
		userID:       userID,
		homeserver:   homeserver,
		allowedRooms: allowedRooms,
		runner:       runner,
		logger:       logger.With("component", "matrix"),
		startedAt:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run syncs with the homeserver and blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.sync == nil {
		return fmt.Errorf("matrix bridge has no sync client")
	}
	b.logger.Info("starting matrix bridge",
		"homeserver", b.homeserver,
		"user_id", b.userID.String(),
		"allowed_rooms", len(b.allowedRooms),
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.sync.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.sync.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.sync.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		b.wg.Wait()
		return nil
	case err := <-syncErr:
		b.wg.Wait()
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent turns a text message into a message activity.
func (b *Bridge) handleMessageEvent(_ context.Context, evt *event.Event) {
	if evt.Sender == b.userID || b.isBacklog(evt) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}
	if content.Body == "" {
		return
	}

	b.logger.Info("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(content.Body, 50),
	)

	act := b.newActivity(evt)
	act.Type = activity.TypeMessage
	act.Text = content.Body
	b.dispatch(act)
}

// handleMemberEvent turns a join by someone else into a conversationUpdate.
func (b *Bridge) handleMemberEvent(_ context.Context, evt *event.Event) {
	if b.isBacklog(evt) || !b.isRoomAllowed(evt.RoomID.String()) {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || content.Membership != event.MembershipJoin {
		return
	}
	member := evt.GetStateKey()
	if member == "" || member == b.userID.String() {
		return
	}

	act := b.newActivity(evt)
	act.Type = activity.TypeConversationUpdate
	act.MembersAdded = []activity.ChannelAccount{{ID: member, Name: content.Displayname}}
	b.dispatch(act)
}

func (b *Bridge) newActivity(evt *event.Event) *activity.Activity {
	return &activity.Activity{
		ID:           evt.ID.String(),
		ChannelID:    activity.ChannelMatrix,
		ServiceURL:   b.homeserver,
		From:         activity.ChannelAccount{ID: evt.Sender.String()},
		Recipient:    activity.ChannelAccount{ID: b.userID.String()},
		Conversation: activity.ConversationAccount{ID: evt.RoomID.String()},
	}
}

// dispatch runs the turn off the sync goroutine.
func (b *Bridge) dispatch(act *activity.Activity) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if _, err := b.runner.Run(b.ctx, act, b.SendActivity); err != nil {
			b.logger.Error("matrix turn failed", "room", act.Conversation.ID, "error", err)
		}
	}()
}

// SendActivity posts out to its room, rendering markdown to HTML.
func (b *Bridge) SendActivity(ctx context.Context, out *activity.Activity) error {
	return b.sendText(ctx, id.RoomID(out.Conversation.ID), out.Text)
}

// SendToConversation posts text to the referenced room outside of a turn.
func (b *Bridge) SendToConversation(ctx context.Context, ref activity.ConversationReference, text string) error {
	return b.sendText(ctx, id.RoomID(ref.Conversation.ID), text)
}

func (b *Bridge) sendText(ctx context.Context, roomID id.RoomID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	content := format.RenderMarkdown(text, true, false)
	if _, err := b.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content); err != nil {
		return fmt.Errorf("sending to %s: %w", roomID, err)
	}
	return nil
}

// Wait blocks until in-flight turns finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// isBacklog reports whether evt predates this process, as replayed by the initial sync.
func (b *Bridge) isBacklog(evt *event.Event) bool {
	return evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(b.startedAt)
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.allowedRooms) == 0 {
		return true
	}
	return slices.Contains(b.allowedRooms, roomID)
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
