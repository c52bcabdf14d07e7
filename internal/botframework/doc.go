// Package botframework speaks the Bot Framework connector protocol.
//
// Adapter receives activities on /api/messages (behind auth.HTTPAuthMiddleware)
// and runs them through the turn runner. Replies are not returned in the HTTP
// response; Connector posts each one to
//
//	{serviceUrl}/v3/conversations/{conversationId}/activities[/{replyToId}]
//
// using an OAuth2 client-credentials token for the bot's app id. Connector
// also implements monitor.Sender for proactive relay messages.
package botframework
