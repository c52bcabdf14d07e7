// Package alexa adapts the Alexa Skills Kit to the turn runner.
//
// Adapter is mounted on POST /api/alexa. For each request it reads the raw
// body, pulls session.sessionId out of it (rejecting bodies without one),
// object-logs the body, and answers a retried request id from the replay
// cache. Otherwise the envelope is validated, converted to an activity by
// Converter, and run as one turn. All replies of the turn are spoken in a
// single response built by BuildResponse; the session stays open when any
// reply expects input.
package alexa
