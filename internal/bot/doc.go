// Package bot implements the turn dispatcher.
//
// # Bots
//
// VoiceBot runs on the Alexa channel. It derives a Mode from the user's
// state.Record and the repeat threshold:
//
//	AwaitingName       no display name yet
//	RepeatMode         TurnCount <  threshold
//	PromptForQuestion  TurnCount == threshold
//	QAMode             TurnCount >  threshold
//
// The first message becomes the name, the next ones are repeated back, one
// nudge asks for questions, and from then on messages go to the knowledge
// base. A goodbye phrase resets the record. LaunchRequest and StopIntent
// events greet and end the session.
//
// MonitorBot runs on every other channel. It echoes messages, greets added
// members, and registers its conversation as the monitor target when it sees
// the activation phrase.
//
// # Dispatch
//
// Router maps channel ids to handlers. Runner wraps a handler with per-user
// serialization, object logging, metrics, and the turn-error handler that
// answers failures with Apology.
package bot
