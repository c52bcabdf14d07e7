// Package state provides per-user conversation state for the bots.
//
// # Architecture
//
// Storage is a small blob key/value interface with three implementations:
//
//   - MemoryStorage: process-local map, the default
//   - SQLiteStorage: one table in a modernc.org/sqlite database
//   - BadgerStorage: an embedded BadgerDB directory
//
// Bots never talk to Storage directly. Each turn builds an Accessor for the
// key returned by KeyFor(channelID, userID), reads the Record with Get,
// mutates it or replaces it with Set/Reset, and calls SaveChanges at the end.
//
// # Data Model
//
// Record holds the user's display name (empty until given) and the number of
// messages handled since the last reset. Records are stored as JSON.
package state
