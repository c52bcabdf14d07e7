// ABOUTME: Tests for the Alexa adapter, converter, validator, and response builder
// ABOUTME: Drives the adapter through httptest with a real VoiceBot behind the runner

package alexa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/bot"
	"github.com/2389/alexa-bridge/internal/objectlog"
	"github.com/2389/alexa-bridge/internal/replay"
	"github.com/2389/alexa-bridge/internal/state"
)

const testSkill = "amzn1.ask.skill.test"

var testConverter = Converter{UtteranceIntent: "GetUserIntent", UtteranceSlot: "phrase"}

func envelope(requestID string, req map[string]any) string {
	req["requestId"] = requestID
	if _, ok := req["locale"]; !ok {
		req["locale"] = "es-ES"
	}
	if _, ok := req["timestamp"]; !ok {
		req["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	body := map[string]any{
		"version": "1.0",
		"session": map[string]any{
			"new":         false,
			"sessionId":   "amzn1.echo-api.session.1",
			"application": map[string]any{"applicationId": testSkill},
			"user":        map[string]any{"userId": "amzn1.ask.account.user"},
		},
		"context": map[string]any{
			"System": map[string]any{
				"application": map[string]any{"applicationId": testSkill},
				"user":        map[string]any{"userId": "amzn1.ask.account.user"},
				"apiEndpoint": "https://api.eu.amazonalexa.com",
			},
		},
		"request": req,
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func launch(id string) string {
	return envelope(id, map[string]any{"type": LaunchRequest})
}

func utterance(id, text string) string {
	return envelope(id, map[string]any{
		"type": IntentRequest,
		"intent": map[string]any{
			"name":  "GetUserIntent",
			"slots": map[string]any{"phrase": map[string]any{"name": "phrase", "value": text}},
		},
	})
}

func intent(id, name string) string {
	return envelope(id, map[string]any{
		"type":   IntentRequest,
		"intent": map[string]any{"name": name},
	})
}

func newTestAdapter(t *testing.T, handler bot.Handler) *Adapter {
	t.Helper()
	cache := replay.New(time.Minute, 100)
	t.Cleanup(cache.Close)
	return NewAdapter(AdapterOptions{
		Runner:    bot.NewRunner(handler, nil, nil),
		Converter: testConverter,
		Validator: Validator{SkillID: testSkill, VerifyTimestamp: true, Tolerance: 150 * time.Second},
		Replay:    cache,
	})
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, ResponseEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/alexa", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env ResponseEnvelope
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func speechOf(env ResponseEnvelope) string {
	if env.Response.OutputSpeech == nil {
		return ""
	}
	return env.Response.OutputSpeech.Text
}

func TestAdapter_VoiceConversation(t *testing.T) {
	voice := bot.NewVoiceBot(bot.VoiceBotOptions{Storage: state.NewMemoryStorage()})
	a := newTestAdapter(t, voice)

	rec, env := post(t, a, launch("req-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, speechOf(env), "dime tu nombre")
	require.NotNil(t, env.Response.ShouldEndSession)
	assert.False(t, *env.Response.ShouldEndSession)

	_, env = post(t, a, utterance("req-2", "Ana"))
	assert.Equal(t, "Gracias Ana, ahora sí voy a repetir lo que digas.", speechOf(env))
	assert.False(t, *env.Response.ShouldEndSession)

	_, env = post(t, a, utterance("req-3", "hola mundo"))
	assert.Equal(t, "ana, dijiste hola mundo", speechOf(env))

	_, env = post(t, a, intent("req-4", "AMAZON.StopIntent"))
	assert.Equal(t, "Terminando la sesión", speechOf(env))
	require.NotNil(t, env.Response.ShouldEndSession)
	assert.True(t, *env.Response.ShouldEndSession)
}

func TestAdapter_SessionEndedHasNoSpeech(t *testing.T) {
	a := newTestAdapter(t, bot.NewVoiceBot(bot.VoiceBotOptions{}))

	rec, env := post(t, a, envelope("req-end", map[string]any{"type": SessionEndedRequest, "reason": "USER_INITIATED"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.Response.OutputSpeech)
	assert.Nil(t, env.Response.ShouldEndSession)
}

func TestAdapter_MissingSessionID(t *testing.T) {
	a := newTestAdapter(t, bot.HandlerFunc(func(context.Context, *bot.TurnContext) error { return nil }))

	rec, _ := post(t, a, `{"version":"1.0","request":{"type":"LaunchRequest","requestId":"r"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing session id")
}

func TestAdapter_InvalidJSON(t *testing.T) {
	a := newTestAdapter(t, bot.HandlerFunc(func(context.Context, *bot.TurnContext) error { return nil }))

	rec, _ := post(t, a, `{"session":{"sessionId":"s"},"request":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdapter_WrongSkill(t *testing.T) {
	a := newTestAdapter(t, bot.HandlerFunc(func(context.Context, *bot.TurnContext) error { return nil }))

	body := strings.ReplaceAll(launch("req-1"), testSkill, "amzn1.ask.skill.other")
	rec, _ := post(t, a, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdapter_MethodNotAllowed(t *testing.T) {
	a := newTestAdapter(t, bot.HandlerFunc(func(context.Context, *bot.TurnContext) error { return nil }))

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alexa", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdapter_ReplaysRetriedRequest(t *testing.T) {
	var turns int32
	a := newTestAdapter(t, bot.HandlerFunc(func(ctx context.Context, tc *bot.TurnContext) error {
		n := atomic.AddInt32(&turns, 1)
		return tc.SendText(ctx, fmt.Sprintf("turn %d", n), activity.ExpectingInput)
	}))

	rec1, env1 := post(t, a, utterance("req-7", "hola"))
	rec2, env2 := post(t, a, utterance("req-7", "hola"))

	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
	assert.Equal(t, "turn 1", speechOf(env1))
	assert.Equal(t, "turn 1", speechOf(env2))
	assert.Equal(t, int32(1), atomic.LoadInt32(&turns))
}

func TestAdapter_ReplayDoesNotSkipValidation(t *testing.T) {
	var turns int32
	a := newTestAdapter(t, bot.HandlerFunc(func(ctx context.Context, tc *bot.TurnContext) error {
		atomic.AddInt32(&turns, 1)
		return tc.SendText(ctx, "Gracias Ana", activity.ExpectingInput)
	}))

	rec, _ := post(t, a, utterance("req-1", "Ana"))
	require.Equal(t, http.StatusOK, rec.Code)

	forged := strings.ReplaceAll(utterance("req-1", "Ana"), testSkill, "amzn1.ask.skill.other")
	forged = strings.ReplaceAll(forged, "amzn1.echo-api.session.1", "other-session")
	rec, _ = post(t, a, forged)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Gracias Ana")
	assert.Equal(t, int32(1), atomic.LoadInt32(&turns))
}

func TestAdapter_ReplayIsScopedToSession(t *testing.T) {
	var turns int32
	a := newTestAdapter(t, bot.HandlerFunc(func(ctx context.Context, tc *bot.TurnContext) error {
		n := atomic.AddInt32(&turns, 1)
		return tc.SendText(ctx, fmt.Sprintf("turn %d", n), activity.ExpectingInput)
	}))

	_, env1 := post(t, a, utterance("req-1", "hola"))
	other := strings.ReplaceAll(utterance("req-1", "hola"), "amzn1.echo-api.session.1", "amzn1.echo-api.session.2")
	rec, env2 := post(t, a, other)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "turn 1", speechOf(env1))
	assert.Equal(t, "turn 2", speechOf(env2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&turns))
}

func TestAdapter_ObjectLogKeepsBodyAndActivity(t *testing.T) {
	dir := t.TempDir()
	logs, err := objectlog.New(dir, nil)
	require.NoError(t, err)

	cache := replay.New(time.Minute, 100)
	t.Cleanup(cache.Close)
	a := NewAdapter(AdapterOptions{
		Runner: bot.NewRunner(bot.HandlerFunc(func(ctx context.Context, tc *bot.TurnContext) error {
			return tc.SendText(ctx, "ok", activity.ExpectingInput)
		}), logs, nil),
		Converter: testConverter,
		Validator: Validator{SkillID: testSkill},
		Recorder:  logs,
		Replay:    cache,
	})

	const requests = 3
	for i := range requests {
		rec, _ := post(t, a, utterance(fmt.Sprintf("req-%d", i), "hola"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var files []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.Len(t, files, 2*requests)

	var bodies int
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		if strings.Contains(string(data), `"sessionId"`) {
			bodies++
		}
	}
	assert.Equal(t, requests, bodies)
}

func TestAdapter_HandlerErrorApologizes(t *testing.T) {
	a := newTestAdapter(t, bot.HandlerFunc(func(context.Context, *bot.TurnContext) error {
		return errors.New("kb down")
	}))

	rec, env := post(t, a, utterance("req-1", "hola"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bot.Apology, speechOf(env))
	assert.True(t, *env.Response.ShouldEndSession)
}

func TestConverter_ToActivity(t *testing.T) {
	var env RequestEnvelope
	require.NoError(t, json.Unmarshal([]byte(utterance("req-1", "hola")), &env))

	act, err := testConverter.ToActivity(&env)
	require.NoError(t, err)
	assert.Equal(t, activity.TypeMessage, act.Type)
	assert.Equal(t, "hola", act.Text)
	assert.Equal(t, "req-1", act.ID)
	assert.Equal(t, activity.ChannelAlexa, act.ChannelID)
	assert.Equal(t, "amzn1.ask.account.user", act.From.ID)
	assert.Equal(t, testSkill, act.Recipient.ID)
	assert.Equal(t, "amzn1.echo-api.session.1", act.Conversation.ID)
	assert.Equal(t, "https://api.eu.amazonalexa.com", act.ServiceURL)
	assert.Equal(t, "es-ES", act.Locale)
}

func TestConverter_IntentEvent(t *testing.T) {
	var env RequestEnvelope
	require.NoError(t, json.Unmarshal([]byte(intent("req-1", "AMAZON.StopIntent")), &env))

	act, err := testConverter.ToActivity(&env)
	require.NoError(t, err)
	assert.Equal(t, activity.TypeEvent, act.Type)
	assert.Equal(t, "StopIntent", act.Name)
	assert.JSONEq(t, `{"name":"AMAZON.StopIntent"}`, string(act.Value))
}

func TestConverter_LaunchEvent(t *testing.T) {
	var env RequestEnvelope
	require.NoError(t, json.Unmarshal([]byte(launch("req-1")), &env))

	act, err := testConverter.ToActivity(&env)
	require.NoError(t, err)
	assert.Equal(t, activity.TypeEvent, act.Type)
	assert.Equal(t, LaunchRequest, act.Name)
	assert.Contains(t, string(act.Value), `"requestId":"req-1"`)
}

func TestConverter_UnknownType(t *testing.T) {
	env := RequestEnvelope{Request: Request{Type: "Display.ElementSelected"}}
	_, err := testConverter.ToActivity(&env)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env = RequestEnvelope{Request: Request{Type: IntentRequest}}
	_, err = testConverter.ToActivity(&env)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestValidator_Timestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := Validator{VerifyTimestamp: true, Tolerance: 150 * time.Second, Now: func() time.Time { return now }}

	env := RequestEnvelope{
		Session: Session{SessionID: "s"},
		Request: Request{Type: LaunchRequest, RequestID: "r", Timestamp: now.Add(-2 * time.Minute).Format(time.RFC3339)},
	}
	assert.NoError(t, v.Validate(&env))

	env.Request.Timestamp = now.Add(-3 * time.Minute).Format(time.RFC3339)
	assert.ErrorIs(t, v.Validate(&env), ErrInvalidRequest)

	env.Request.Timestamp = "yesterday"
	assert.ErrorIs(t, v.Validate(&env), ErrInvalidRequest)

	v.VerifyTimestamp = false
	assert.NoError(t, v.Validate(&env))
}

func TestValidator_RequiredFields(t *testing.T) {
	v := Validator{}
	assert.ErrorIs(t, v.Validate(&RequestEnvelope{Request: Request{Type: LaunchRequest, RequestID: "r"}}), ErrInvalidRequest)
	assert.ErrorIs(t, v.Validate(&RequestEnvelope{Session: Session{SessionID: "s"}, Request: Request{Type: LaunchRequest}}), ErrInvalidRequest)
	assert.ErrorIs(t, v.Validate(&RequestEnvelope{Session: Session{SessionID: "s"}, Request: Request{RequestID: "r"}}), ErrInvalidRequest)
}

func TestBuildResponse(t *testing.T) {
	replies := []*activity.Activity{
		activity.NewMessage("**Hola** ana,", activity.AcceptingInput),
		activity.NewMessage("dijiste algo", activity.ExpectingInput),
	}
	env := BuildResponse(IntentRequest, replies)
	require.NotNil(t, env.Response.OutputSpeech)
	assert.Equal(t, "PlainText", env.Response.OutputSpeech.Type)
	assert.Equal(t, "Hola ana, dijiste algo", env.Response.OutputSpeech.Text)
	assert.False(t, *env.Response.ShouldEndSession)

	env = BuildResponse(IntentRequest, []*activity.Activity{activity.NewMessage("Adiós!", activity.IgnoringInput)})
	assert.True(t, *env.Response.ShouldEndSession)

	env = BuildResponse(IntentRequest, nil)
	assert.Nil(t, env.Response.OutputSpeech)
	assert.True(t, *env.Response.ShouldEndSession)
}
