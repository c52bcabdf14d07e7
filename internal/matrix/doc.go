// Package matrix connects Matrix rooms to the bridge as a monitor channel.
//
// Text messages in allowed rooms become message activities on the "matrix"
// channel and joins by other users become conversationUpdate activities.
// Events older than the process are skipped so the initial sync does not
// replay history. Replies and relayed monitor text are rendered from
// markdown and sent as m.room.message events. End-to-end encryption is not
// supported.
package matrix
