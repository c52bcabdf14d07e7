// ABOUTME: Tests for the Gateway orchestrator and its HTTP routes
// ABOUTME: Builds a real gateway from config and drives it through httptest

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/alexa-bridge/internal/config"
)

// testConfig creates a minimal config for testing with in-memory state.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Server:  config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return gw
}

func alexaLaunch(requestID string) string {
	body := map[string]any{
		"version": "1.0",
		"session": map[string]any{
			"sessionId":   "amzn1.echo-api.session.gw",
			"application": map[string]any{"applicationId": "amzn1.ask.skill.gw"},
			"user":        map[string]any{"userId": "amzn1.ask.account.gw"},
		},
		"context": map[string]any{
			"System": map[string]any{
				"application": map[string]any{"applicationId": "amzn1.ask.skill.gw"},
				"user":        map[string]any{"userId": "amzn1.ask.account.gw"},
				"apiEndpoint": "https://api.eu.amazonalexa.com",
			},
		},
		"request": map[string]any{
			"type":      "LaunchRequest",
			"requestId": requestID,
			"locale":    "es-ES",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGateway_AlexaLaunch(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := do(t, gw.Handler(), http.MethodPost, "/api/alexa", alexaLaunch("req-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Version  string `json:"version"`
		Response struct {
			OutputSpeech struct {
				Text string `json:"text"`
			} `json:"outputSpeech"`
			ShouldEndSession *bool `json:"shouldEndSession"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.0", resp.Version)
	assert.Contains(t, resp.Response.OutputSpeech.Text, "dime tu nombre")
	require.NotNil(t, resp.Response.ShouldEndSession)
	assert.False(t, *resp.Response.ShouldEndSession)
}

func TestGateway_Health(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := do(t, gw.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, gw.ServerID(), rec.Header().Get("X-Server-ID"))

	rec = do(t, gw.Handler(), http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memory")
	assert.Equal(t, gw.ServerID(), rec.Header().Get("X-Server-ID"))
}

func TestGateway_ServerID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	gw, err := New(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	defer func() { _ = gw.Shutdown(context.Background()) }()

	assert.True(t, strings.HasPrefix(gw.ServerID(), "alexa-bridge-"), gw.ServerID())

	gw.logger.Info("hello")
	assert.Contains(t, buf.String(), "server_id="+gw.ServerID())
}

func TestGateway_Metrics(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	do(t, gw.Handler(), http.MethodPost, "/api/alexa", alexaLaunch("req-metrics"))

	rec := do(t, gw.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alexa_bridge_")
}

func TestGateway_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	gw := newTestGateway(t, cfg)

	rec := do(t, gw.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_MessagesRequireTokenWhenAppIDSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.BotFramework.AppID = "app-id"
	cfg.BotFramework.AppPassword = "secret"
	gw := newTestGateway(t, cfg)

	body := `{"type":"message","channelId":"emulator","conversation":{"id":"c1"},"text":"hola"}`
	rec := do(t, gw.Handler(), http.MethodPost, "/api/messages", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_MessagesOpenInEmulatorMode(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	// Only the bot itself joined, so no greeting is sent.
	body := `{"type":"conversationUpdate","channelId":"emulator","conversation":{"id":"c1"},"recipient":{"id":"bot"}}`
	rec := do(t, gw.Handler(), http.MethodPost, "/api/messages", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_RateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	gw := newTestGateway(t, cfg)

	for i := range 2 {
		rec := do(t, gw.Handler(), http.MethodGet, "/api/alexa", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "request %d", i)
	}
	rec := do(t, gw.Handler(), http.MethodGet, "/api/alexa", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// Health is not limited.
	rec = do(t, gw.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterPool_Sweep(t *testing.T) {
	now := time.Now()
	p := newLimiterPool(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1})
	p.now = func() time.Time { return now }

	assert.True(t, p.Allow("a"))
	assert.False(t, p.Allow("a"))
	assert.True(t, p.Allow("b"))
	assert.Equal(t, 2, p.size())

	now = now.Add(limiterIdleTTL / 2)
	p.Allow("b")
	now = now.Add(limiterIdleTTL/2 + time.Second)

	assert.Equal(t, 1, p.sweep())
	assert.Equal(t, 1, p.size())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientIP(req))
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/tmp/ts")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ts", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, "alexa-bridge/tailscale"))
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	require.Error(t, err)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err := resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)

	key, err = resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)
}

func TestGateway_RunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
