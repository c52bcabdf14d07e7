// ABOUTME: Single-slot monitor target and fire-and-forget relay of voice traffic
// ABOUTME: One worker drains a bounded queue in order; each send has its own timeout and failures are only logged

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/metrics"
)

// DefaultSendTimeout bounds a single relay send when none is configured.
const DefaultSendTimeout = 10 * time.Second

// queueSize is how many mirrors may wait behind a slow send before new ones are dropped.
const queueSize = 256

// Sender delivers text to a conversation outside of a turn.
type Sender interface {
	SendToConversation(ctx context.Context, ref activity.ConversationReference, text string) error
}

// Relay holds the current monitor target and mirrors text to it.
type Relay struct {
	mu     sync.RWMutex
	target *activity.ConversationReference

	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	queue   chan relayJob
	wg      sync.WaitGroup
}

type relayJob struct {
	ctx  context.Context
	ref  activity.ConversationReference
	text string
}

// NewRelay creates a relay that sends through sender.
func NewRelay(sender Sender, timeout time.Duration, logger *slog.Logger) *Relay {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		sender:  sender,
		timeout: timeout,
		logger:  logger.With("component", "monitor"),
		queue:   make(chan relayJob, queueSize),
	}
	go r.run()
	return r
}

// SetTarget replaces the monitor target. The previous target, if any, is forgotten.
func (r *Relay) SetTarget(ref activity.ConversationReference) {
	r.mu.Lock()
	r.target = &ref
	r.mu.Unlock()

	r.logger.Info("monitor target set",
		"channel", ref.ChannelID,
		"conversation", ref.Conversation.ID,
	)
}

// Target returns the current monitor target.
func (r *Relay) Target() (activity.ConversationReference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.target == nil {
		return activity.ConversationReference{}, false
	}
	return *r.target, true
}

// Relay mirrors text to the monitor target. It returns immediately; with no
// target it does nothing. Mirrors are sent one at a time in call order, detached
// from ctx cancellation so they can outlive the turn that triggered them. When
// the queue is full the text is dropped.
func (r *Relay) Relay(ctx context.Context, text string) {
	ref, ok := r.Target()
	if !ok {
		return
	}

	r.wg.Add(1)
	select {
	case r.queue <- relayJob{ctx: context.WithoutCancel(ctx), ref: ref, text: text}:
	default:
		r.wg.Done()
		metrics.RelaySends.WithLabelValues("dropped").Inc()
		r.logger.Warn("monitor relay queue full, dropping message",
			"channel", ref.ChannelID,
			"conversation", ref.Conversation.ID,
		)
	}
}

func (r *Relay) run() {
	for job := range r.queue {
		r.send(job.ctx, job.ref, job.text)
		r.wg.Done()
	}
}

func (r *Relay) send(ctx context.Context, ref activity.ConversationReference, text string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("relay send panicked: %v", p)
			}
		}()
		err = r.sender.SendToConversation(ctx, ref, text)
	}()

	if err != nil {
		metrics.RelaySends.WithLabelValues("error").Inc()
		r.logger.Error("monitor relay failed",
			"error", err,
			"channel", ref.ChannelID,
			"conversation", ref.Conversation.ID,
		)
		return
	}

	metrics.RelaySends.WithLabelValues("ok").Inc()
	r.logger.Debug("monitor relay sent", "channel", ref.ChannelID, "conversation", ref.Conversation.ID)
}

// Wait blocks until queued relay sends finish. Used at shutdown and in tests.
func (r *Relay) Wait() {
	r.wg.Wait()
}
