// ABOUTME: Turn runner shared by the channel adapters
// ABOUTME: Serializes turns per user, object-logs activities, and applies the turn-error handler

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/metrics"
	"github.com/2389/alexa-bridge/internal/objectlog"
	"github.com/2389/alexa-bridge/internal/state"
)

// Apology is sent when a turn fails.
const Apology = "Sorry, it looks like something went wrong."

// Runner executes turns against a Handler.
type Runner struct {
	handler  Handler
	recorder objectlog.Recorder
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewRunner creates a Runner. A nil recorder discards object logs.
func NewRunner(handler Handler, recorder objectlog.Recorder, logger *slog.Logger) *Runner {
	if recorder == nil {
		recorder = objectlog.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		handler:  handler,
		recorder: recorder,
		locks:    newKeyedMutex(),
		logger:   logger.With("component", "runner"),
	}
}

// Run processes act as one turn, sending replies through send.
// Handler errors and panics are logged and answered with Apology; the turn
// still counts as handled. Run returns an error only if the apology itself
// could not be sent.
func (r *Runner) Run(ctx context.Context, act *activity.Activity, send SendFunc) (*TurnContext, error) {
	start := time.Now()
	if act.ID == "" {
		act.ID = activity.NewID()
	}

	unlock := r.locks.Lock(state.KeyFor(act.ChannelID, act.From.ID))
	defer unlock()

	if err := r.recorder.RecordObject(act.Conversation.ID, act.ID, act); err != nil {
		r.logger.Warn("object log failed", "error", err, "activity_id", act.ID)
	}

	metrics.Turns.WithLabelValues(act.ChannelID, string(act.Type)).Inc()
	defer func() {
		metrics.TurnDuration.WithLabelValues(act.ChannelID).Observe(time.Since(start).Seconds())
	}()

	tc := NewTurnContext(act, send)
	if err := r.invoke(ctx, tc); err != nil {
		metrics.TurnErrors.WithLabelValues(act.ChannelID).Inc()
		r.logger.Error("turn failed",
			"error", err,
			"channel", act.ChannelID,
			"type", act.Type,
			"activity_id", act.ID,
		)
		if sendErr := tc.SendText(ctx, Apology, ""); sendErr != nil {
			return tc, fmt.Errorf("sending apology: %w", sendErr)
		}
	}

	r.logger.Debug("turn handled",
		"channel", act.ChannelID,
		"type", act.Type,
		"responses", len(tc.Responses()),
		"duration", time.Since(start),
	)
	return tc, nil
}

func (r *Runner) invoke(ctx context.Context, tc *TurnContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in turn handler", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("turn handler panicked: %v", p)
		}
	}()
	return r.handler.OnTurn(ctx, tc)
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
