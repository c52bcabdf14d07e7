// ABOUTME: Gateway orchestrator that wires the bots, channel adapters, and HTTP server
// ABOUTME: Manages state storage, background workers, listeners, and health endpoints lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/alexa"
	"github.com/2389/alexa-bridge/internal/auth"
	"github.com/2389/alexa-bridge/internal/bot"
	"github.com/2389/alexa-bridge/internal/botframework"
	"github.com/2389/alexa-bridge/internal/config"
	"github.com/2389/alexa-bridge/internal/knowledge"
	"github.com/2389/alexa-bridge/internal/matrix"
	"github.com/2389/alexa-bridge/internal/metrics"
	"github.com/2389/alexa-bridge/internal/monitor"
	"github.com/2389/alexa-bridge/internal/objectlog"
	"github.com/2389/alexa-bridge/internal/replay"
	"github.com/2389/alexa-bridge/internal/state"
)

// replayCacheSize caps the number of cached Alexa responses.
const replayCacheSize = 10_000

// readyProbeKey is loaded by the readiness check to exercise the state backend.
const readyProbeKey = "health/ready"

// Gateway orchestrates the alexa-bridge server components.
type Gateway struct {
	config      *config.Config
	storage     state.Storage
	runner      *bot.Runner
	relay       *monitor.Relay
	replay      *replay.Cache
	objectLog   *objectlog.Logger
	pruner      *objectlog.Pruner
	matrix      *matrix.Bridge
	limiters    *limiterPool
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// publicURL is the externally reachable base URL, once known
	publicURL string

	// workers tracks background goroutines started by Run
	workers sync.WaitGroup
}

// initObjectLog creates the object logger and its pruner when enabled.
func initObjectLog(cfg config.ObjectLogConfig, logger *slog.Logger) (*objectlog.Logger, *objectlog.Pruner, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	l, err := objectlog.New(cfg.Dir, logger)
	if err != nil {
		return nil, nil, err
	}
	p, err := objectlog.NewPruner(l, cfg.PruneCron, cfg.Retention)
	if err != nil {
		return nil, nil, err
	}
	return l, p, nil
}

// createVerifier builds the channel token verifier, or nil when no app id is configured.
func createVerifier(cfg config.BotFrameworkConfig, client *http.Client, logger *slog.Logger) auth.TokenVerifier {
	if cfg.AppID == "" {
		logger.Warn("botframework auth disabled - no app_id configured (emulator mode)")
		return nil
	}
	logger.Info("botframework channel auth enabled", "app_id", cfg.AppID)
	return auth.NewChannelValidator(cfg.AppID, auth.NewKeySource(cfg.OpenIDMetadataURL, client))
}

// New creates a new Gateway instance with the given configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	storage, err := state.Open(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("initializing state storage: %w", err)
	}

	kb, err := knowledge.Open(ctx, cfg.Knowledge, httpClient)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("initializing knowledge base: %w", err)
	}

	objLog, pruner, err := initObjectLog(cfg.ObjectLog, logger)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("initializing object log: %w", err)
	}
	var recorder objectlog.Recorder = objectlog.Discard
	if objLog != nil {
		recorder = objLog
		logger.Info("object logging enabled", "dir", objLog.Dir())
	}

	connector := botframework.NewConnector(cfg.BotFramework, httpClient, logger)
	senders := monitor.NewChannelSenders(connector)
	relay := monitor.NewRelay(senders, cfg.Monitor.SendTimeout, logger)

	voice := bot.NewVoiceBot(bot.VoiceBotOptions{
		Storage:     storage,
		Knowledge:   kb,
		Relay:       relay,
		Catalog:     bot.NewCatalog(cfg.Bot.DefaultLocale),
		RepeatTurns: cfg.Bot.RepeatTurns,
		Logger:      logger,
	})
	router := bot.NewRouter(bot.NewMonitorBot(relay, cfg.Monitor.ActivationPhrase, logger))
	router.Handle(activity.ChannelAlexa, voice)
	runner := bot.NewRunner(router, recorder, logger)

	serverID := generateServerID()
	gw := &Gateway{
		config:    cfg,
		storage:   storage,
		runner:    runner,
		relay:     relay,
		replay:    replay.New(cfg.Alexa.ReplayTTL, replayCacheSize),
		objectLog: objLog,
		pruner:    pruner,
		logger:    logger.With("component", "gateway", "server_id", serverID),
		serverID:  serverID,
	}
	if cfg.RateLimit.Enabled {
		gw.limiters = newLimiterPool(cfg.RateLimit)
	}

	if cfg.Matrix.Enabled {
		bridge, err := matrix.NewBridge(cfg.Matrix, runner, logger)
		if err != nil {
			gw.replay.Close()
			_ = storage.Close()
			return nil, err
		}
		senders.Register(activity.ChannelMatrix, bridge)
		gw.matrix = bridge
		logger.Info("matrix monitor channel enabled", "homeserver", cfg.Matrix.Homeserver)
	}

	alexaAdapter := alexa.NewAdapter(alexa.AdapterOptions{
		Runner: runner,
		Converter: alexa.Converter{
			UtteranceIntent: cfg.Alexa.UtteranceIntent,
			UtteranceSlot:   cfg.Alexa.UtteranceSlot,
		},
		Validator: alexa.Validator{
			SkillID:         cfg.Alexa.SkillID,
			VerifyTimestamp: cfg.Alexa.VerifyTimestamp,
			Tolerance:       cfg.Alexa.TimestampTolerance,
		},
		Recorder: recorder,
		Replay:   gw.replay,
		Logger:   logger,
	})
	if cfg.Alexa.SkillID == "" {
		logger.Warn("alexa skill id not configured - accepting requests for any skill")
	}

	authMiddleware := auth.HTTPAuthMiddleware(createVerifier(cfg.BotFramework, httpClient, logger), logger)
	messagesAdapter := botframework.NewAdapter(runner, connector, logger)

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Channel endpoints
	mux.Handle("/api/alexa", gw.rateLimit(alexaAdapter))
	mux.Handle("/api/messages", gw.rateLimit(authMiddleware(messagesAdapter)))

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving all routes.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// ServerID returns the unique identifier of this gateway instance.
func (g *Gateway) ServerID() string {
	return g.serverID
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// warnIgnoredAddress logs a warning if a server address is configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddress() {
	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddress()
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startWorkers launches the background goroutines that live as long as ctx.
func (g *Gateway) startWorkers(ctx context.Context) {
	if g.pruner != nil {
		g.workers.Add(1)
		go func() {
			defer g.workers.Done()
			g.pruner.Run(ctx)
		}()
	}

	if g.matrix != nil {
		g.workers.Add(1)
		go func() {
			defer g.workers.Done()
			if err := g.matrix.Run(ctx); err != nil {
				g.logger.Error("matrix bridge stopped", "error", err)
			}
		}()
	}

	if g.limiters != nil {
		g.workers.Add(1)
		go func() {
			defer g.workers.Done()
			ticker := time.NewTicker(limiterIdleTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := g.limiters.sweep(); n > 0 {
						g.logger.Debug("swept idle rate limiters", "removed", n)
					}
				}
			}
		}()
	}
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	g.startWorkers(workerCtx)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	stopWorkers()
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "alexa-bridge", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)
	g.updatePublicURLFromStatus(status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// updatePublicURLFromStatus records the Tailscale DNS name as the public base URL.
func (g *Gateway) updatePublicURLFromStatus(status *ipnstate.Status) {
	if status.Self == nil || status.Self.DNSName == "" {
		return
	}
	g.publicURL = "https://" + strings.TrimSuffix(status.Self.DNSName, ".")
	if g.config.Tailscale.Funnel {
		g.logger.Info("alexa skill endpoint", "url", g.publicURL+"/api/alexa")
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server, drains in-flight work, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.workers.Wait()
	if g.matrix != nil {
		g.matrix.Wait()
	}
	g.relay.Wait()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	g.replay.Close()
	errs = appendCloseError(errs, "state close", g.storage.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(serverIDHeader, g.serverID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the state backend answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(serverIDHeader, g.serverID)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := g.storage.Load(ctx, readyProbeKey); err != nil && !errors.Is(err, state.ErrNotFound) {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("state backend unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", g.config.State.Backend)
}

// serverIDHeader tells which instance answered a health check.
const serverIDHeader = "X-Server-ID"

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("alexa-bridge-%d", time.Now().UnixNano()%1000000)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
