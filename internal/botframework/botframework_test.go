// ABOUTME: Tests for the connector client and the messaging endpoint adapter
// ABOUTME: Uses httptest servers for the channel service and the token endpoint

package botframework

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/auth"
	"github.com/2389/alexa-bridge/internal/bot"
	"github.com/2389/alexa-bridge/internal/config"
	"github.com/2389/alexa-bridge/internal/monitor"
)

type postedActivity struct {
	Path          string
	Authorization string
	Activity      activity.Activity
}

// channelService records activities posted to the connector API.
type channelService struct {
	*httptest.Server
	mu     sync.Mutex
	posted []postedActivity
	status int
}

func newChannelService(t *testing.T) *channelService {
	t.Helper()
	cs := &channelService{status: http.StatusOK}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var act activity.Activity
		_ = json.NewDecoder(r.Body).Decode(&act)

		cs.mu.Lock()
		cs.posted = append(cs.posted, postedActivity{Path: r.URL.EscapedPath(), Authorization: r.Header.Get("Authorization"), Activity: act})
		status := cs.status
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"id":"posted-1"}`)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *channelService) all() []postedActivity {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]postedActivity(nil), cs.posted...)
}

func TestConnector_SendActivityReply(t *testing.T) {
	cs := newChannelService(t)
	c := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)

	out := activity.NewMessage("hola", "")
	out.ServiceURL = cs.URL + "/"
	out.Conversation.ID = "conv/1"
	out.ReplyToID = "act-1"

	require.NoError(t, c.SendActivity(context.Background(), out))

	posted := cs.all()
	require.Len(t, posted, 1)
	assert.Equal(t, "/v3/conversations/conv%2F1/activities/act-1", posted[0].Path)
	assert.Equal(t, "hola", posted[0].Activity.Text)
	assert.Empty(t, posted[0].Authorization)
}

func TestConnector_SendToConversation(t *testing.T) {
	cs := newChannelService(t)
	c := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)

	ref := activity.ConversationReference{
		User:         activity.ChannelAccount{ID: "operator"},
		Bot:          activity.ChannelAccount{ID: "bot"},
		Conversation: activity.ConversationAccount{ID: "monitor-conv"},
		ChannelID:    activity.ChannelEmulator,
		ServiceURL:   cs.URL,
	}
	require.NoError(t, c.SendToConversation(context.Background(), ref, "User said (es-ES):\n**hola**"))

	posted := cs.all()
	require.Len(t, posted, 1)
	assert.Equal(t, "/v3/conversations/monitor-conv/activities", posted[0].Path)
	assert.Equal(t, "bot", posted[0].Activity.From.ID)
	assert.Equal(t, "operator", posted[0].Activity.Recipient.ID)
}

func TestConnector_UsesClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"bot-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	cs := newChannelService(t)
	c := NewConnector(config.BotFrameworkConfig{
		AppID:       "app",
		AppPassword: "secret",
		TokenURL:    tokenSrv.URL,
		Scope:       "https://api.botframework.com/.default",
	}, &http.Client{Timeout: 5 * time.Second}, nil)

	out := activity.NewMessage("hola", "")
	out.ServiceURL = cs.URL
	out.Conversation.ID = "c"
	require.NoError(t, c.SendActivity(context.Background(), out))

	posted := cs.all()
	require.Len(t, posted, 1)
	assert.Equal(t, "Bearer bot-token", posted[0].Authorization)
}

func TestConnector_Errors(t *testing.T) {
	cs := newChannelService(t)
	cs.mu.Lock()
	cs.status = http.StatusForbidden
	cs.mu.Unlock()
	c := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)

	out := activity.NewMessage("hola", "")
	assert.Error(t, c.SendActivity(context.Background(), out), "missing service url")

	out.ServiceURL = cs.URL
	assert.Error(t, c.SendActivity(context.Background(), out), "missing conversation")

	out.Conversation.ID = "c"
	assert.Error(t, c.SendActivity(context.Background(), out), "non-2xx status")
}

func inbound(serviceURL, text string) string {
	b, _ := json.Marshal(activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "act-1",
		Text:         text,
		ChannelID:    activity.ChannelEmulator,
		ServiceURL:   serviceURL,
		From:         activity.ChannelAccount{ID: "operator"},
		Recipient:    activity.ChannelAccount{ID: "bot"},
		Conversation: activity.ConversationAccount{ID: "chat-conv"},
	})
	return string(b)
}

func TestAdapter_MonitorActivation(t *testing.T) {
	cs := newChannelService(t)
	conn := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)
	relay := monitor.NewRelay(conn, time.Second, nil)
	a := NewAdapter(bot.NewRunner(bot.NewMonitorBot(relay, "monitor alexa", nil), nil, nil), conn, nil)

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(inbound(cs.URL, "monitor alexa"))))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	posted := cs.all()
	require.Len(t, posted, 1)
	assert.Equal(t, "Alexa monitor is on", posted[0].Activity.Text)
	assert.Equal(t, "/v3/conversations/chat-conv/activities/act-1", posted[0].Path)

	ref, ok := relay.Target()
	require.True(t, ok)
	assert.Equal(t, "chat-conv", ref.Conversation.ID)

	relay.Relay(context.Background(), "User said (es-ES):\n**hola**")
	relay.Wait()
	posted = cs.all()
	require.Len(t, posted, 2)
	assert.Equal(t, "User said (es-ES):\n**hola**", posted[1].Activity.Text)
}

func TestAdapter_BadRequests(t *testing.T) {
	cs := newChannelService(t)
	conn := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)
	a := NewAdapter(bot.NewRunner(bot.NewMonitorBot(monitor.NewRelay(conn, time.Second, nil), "", nil), nil, nil), conn, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"type":`},
		{"missing conversation", `{"type":"message","channelId":"emulator"}`},
		{"alexa channel", `{"type":"message","channelId":"alexa","conversation":{"id":"c"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, cs.all())
}

func TestAdapter_ChecksIdentity(t *testing.T) {
	cs := newChannelService(t)
	conn := NewConnector(config.BotFrameworkConfig{}, cs.Client(), nil)
	a := NewAdapter(bot.NewRunner(bot.NewMonitorBot(monitor.NewRelay(conn, time.Second, nil), "", nil), nil, nil), conn, nil)

	serve := func(id *auth.Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(inbound(cs.URL, "hola")))
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(&auth.Identity{ServiceURL: "https://elsewhere.example.com"}))
	assert.Equal(t, http.StatusUnauthorized, serve(&auth.Identity{ServiceURL: cs.URL, Endorsements: []string{"msteams"}}))
	assert.Equal(t, http.StatusOK, serve(&auth.Identity{ServiceURL: cs.URL + "/", Endorsements: []string{"emulator"}}))

	posted := cs.all()
	require.Len(t, posted, 1)
	assert.Equal(t, `Echo from MonitorBot: "**hola**"`, posted[0].Activity.Text)
}
