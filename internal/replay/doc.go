// Package replay caches responses by request id so a retried request gets
// the same answer within a configurable window.
package replay
