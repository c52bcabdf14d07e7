// Package gateway orchestrates the alexa-bridge server components.
//
// # Overview
//
// The gateway owns every long-lived piece of the server: the state
// storage, the knowledge base, the bot router and turn runner, the monitor
// relay, the optional Matrix bridge, and the HTTP server that fronts them.
//
// # HTTP Routes
//
//   - POST /api/alexa - Alexa skill requests, served by the VoiceBot
//   - POST /api/messages - Bot Framework activities, served by the MonitorBot
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check against the state backend
//   - GET /metrics - Prometheus metrics, when enabled
//
// Both channel endpoints sit behind an optional per-client rate limiter.
// /api/messages additionally requires a Bot Framework channel token when
// an app id is configured.
//
// # Listeners
//
// The HTTP server listens on server.http_addr, or on a tsnet node when
// Tailscale is enabled. Alexa requires a public HTTPS endpoint, which a
// Funnel listener provides without a reverse proxy.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// Shutdown stops the HTTP server, waits for background workers and
// in-flight relay sends, and closes the state storage.
package gateway
