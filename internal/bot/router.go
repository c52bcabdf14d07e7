// ABOUTME: Channel-keyed dispatch table for turn handlers
// ABOUTME: Maps a channel id to its bot, with a fallback for unknown channels

package bot

import (
	"context"
	"sync"
)

// Router picks a Handler by the inbound activity's channel id.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Handler
	fallback Handler
}

// NewRouter creates a router that sends unmatched channels to fallback.
func NewRouter(fallback Handler) *Router {
	return &Router{
		routes:   make(map[string]Handler),
		fallback: fallback,
	}
}

// Handle registers h for channelID, replacing any previous handler.
func (r *Router) Handle(channelID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[channelID] = h
}

// HandlerFor returns the handler for channelID.
func (r *Router) HandlerFor(channelID string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.routes[channelID]; ok {
		return h
	}
	return r.fallback
}

// OnTurn dispatches tc to the handler for its channel.
func (r *Router) OnTurn(ctx context.Context, tc *TurnContext) error {
	h := r.HandlerFor(tc.Activity.ChannelID)
	if h == nil {
		return nil
	}
	return h.OnTurn(ctx, tc)
}
