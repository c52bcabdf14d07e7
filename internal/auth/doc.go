// Package auth authenticates the Bot Framework channel service.
//
// # Channel Tokens
//
// Every activity posted to /api/messages carries an RS256 JWT in the
// Authorization header. ChannelValidator accepts a token when:
//
//   - it is signed by a key from the channel's JWKS (resolved through the
//     OpenID metadata document by KeySource)
//   - the issuer is https://api.botframework.com
//   - the audience is the bot's app id
//   - it has not expired (five minutes of skew are tolerated)
//
// The verified Identity carries the serviceurl claim and the key's channel
// endorsements so the adapter can check them against the activity.
//
// # Key Caching
//
// Keys are cached for a day. An unknown kid triggers a refetch at most every
// five minutes.
//
// # HTTP Middleware
//
//	HTTPAuthMiddleware(validator, logger)
//
// Requests with a missing or invalid token get 401 and {"error": "..."}.
// With a nil verifier (no app id configured) the middleware is a pass-through.
package auth
