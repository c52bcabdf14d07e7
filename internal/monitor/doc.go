// Package monitor mirrors voice-channel traffic to a chat conversation.
//
// A Relay holds at most one target conversation. SetTarget overwrites it and
// Relay queues text for a single worker that sends it there in order, each send
// bounded by its own timeout. Send failures never reach the caller.
//
// ChannelSenders picks the transport for the target: the Matrix bridge for
// matrix rooms, the Bot Framework connector for everything else.
package monitor
