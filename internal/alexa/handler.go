// ABOUTME: HTTP adapter for the Alexa skill endpoint
// ABOUTME: Logs the raw body, validates, runs one turn, and answers with the merged speech

package alexa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/bot"
	"github.com/2389/alexa-bridge/internal/metrics"
	"github.com/2389/alexa-bridge/internal/objectlog"
	"github.com/2389/alexa-bridge/internal/replay"
)

// maxBodyBytes bounds skill request bodies. Alexa caps them well below this.
const maxBodyBytes = 1 << 20

// TurnRunner runs one turn and returns the finished turn context.
type TurnRunner interface {
	Run(ctx context.Context, act *activity.Activity, send bot.SendFunc) (*bot.TurnContext, error)
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Runner    TurnRunner
	Converter Converter
	Validator Validator
	Recorder  objectlog.Recorder
	Replay    *replay.Cache
	Logger    *slog.Logger
}

// Adapter serves POST /api/alexa.
type Adapter struct {
	runner    TurnRunner
	converter Converter
	validator Validator
	recorder  objectlog.Recorder
	replay    *replay.Cache
	logger    *slog.Logger
}

// NewAdapter creates an Adapter. Recorder and Replay are optional.
func NewAdapter(opts AdapterOptions) *Adapter {
	if opts.Recorder == nil {
		opts.Recorder = objectlog.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		runner:    opts.Runner,
		converter: opts.Converter,
		validator: opts.Validator,
		recorder:  opts.Recorder,
		replay:    opts.Replay,
		logger:    opts.Logger.With("component", "alexa"),
	}
}

// ServeHTTP handles one skill request.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	requestType := gjson.GetBytes(body, "request.type").String()
	sessionID := gjson.GetBytes(body, "session.sessionId").String()
	if sessionID == "" {
		a.reject(w, requestType, "missing session id")
		return
	}

	requestID := gjson.GetBytes(body, "request.requestId").String()

	// The body gets its own trace id; the activity is logged under the request id.
	traceID := activity.NewID()
	a.logger.Debug("alexa request", "session_id", sessionID, "request_id", requestID, "trace_id", traceID, "type", requestType)
	if err := a.recorder.Record(sessionID, traceID, body); err != nil {
		a.logger.Warn("object log failed", "error", err, "session_id", sessionID)
	}

	var env RequestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		a.reject(w, requestType, "invalid JSON")
		return
	}
	if err := a.validator.Validate(&env); err != nil {
		a.logger.Warn("rejected alexa request", "error", err, "request_id", requestID)
		a.reject(w, requestType, err.Error())
		return
	}

	key := replayKey(sessionID, requestID)
	if cached, ok := a.cached(key); ok {
		metrics.AlexaRequests.WithLabelValues(requestType, "replayed").Inc()
		a.logger.Info("replaying cached response", "request_id", requestID)
		writeJSON(w, cached)
		return
	}

	act, err := a.converter.ToActivity(&env)
	if err != nil {
		a.logger.Warn("unconvertible alexa request", "error", err, "request_id", requestID)
		a.reject(w, requestType, err.Error())
		return
	}

	// Replies are collected on the turn context and spoken in one response.
	tc, err := a.runner.Run(r.Context(), act, func(context.Context, *activity.Activity) error { return nil })
	if err != nil {
		metrics.AlexaRequests.WithLabelValues(requestType, "error").Inc()
		a.logger.Error("alexa turn failed", "error", err, "request_id", requestID)
		sendJSONError(w, http.StatusInternalServerError, "turn failed")
		return
	}

	out, err := json.Marshal(BuildResponse(env.Request.Type, tc.Responses()))
	if err != nil {
		metrics.AlexaRequests.WithLabelValues(requestType, "error").Inc()
		sendJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	if a.replay != nil && key != "" {
		a.replay.Put(key, out)
	}

	metrics.AlexaRequests.WithLabelValues(requestType, "ok").Inc()
	a.logger.Info("alexa request handled",
		"request_id", requestID,
		"type", requestType,
		"replies", len(tc.Responses()),
		"duration", time.Since(start),
	)
	writeJSON(w, out)
}

// replayKey scopes a request id to its session. Empty when there is no request id.
func replayKey(sessionID, requestID string) string {
	if requestID == "" {
		return ""
	}
	return sessionID + "/" + requestID
}

func (a *Adapter) cached(key string) ([]byte, bool) {
	if a.replay == nil || key == "" {
		return nil, false
	}
	return a.replay.Get(key)
}

func (a *Adapter) reject(w http.ResponseWriter, requestType, message string) {
	metrics.AlexaRequests.WithLabelValues(requestType, "rejected").Inc()
	sendJSONError(w, http.StatusBadRequest, message)
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
