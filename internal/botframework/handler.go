// ABOUTME: HTTP adapter for the Bot Framework messaging endpoint
// ABOUTME: Decodes inbound activities, checks the caller identity, and runs one turn

package botframework

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/auth"
	"github.com/2389/alexa-bridge/internal/bot"
)

const maxBodyBytes = 1 << 20

// TurnRunner runs one turn and returns the finished turn context.
type TurnRunner interface {
	Run(ctx context.Context, act *activity.Activity, send bot.SendFunc) (*bot.TurnContext, error)
}

// ActivitySender posts outbound activities.
type ActivitySender interface {
	SendActivity(ctx context.Context, out *activity.Activity) error
}

// Adapter serves POST /api/messages.
type Adapter struct {
	runner TurnRunner
	sender ActivitySender
	logger *slog.Logger
}

// NewAdapter creates an Adapter whose replies go out through sender.
func NewAdapter(runner TurnRunner, sender ActivitySender, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		runner: runner,
		sender: sender,
		logger: logger.With("component", "botframework"),
	}
}

// ServeHTTP handles one inbound activity. Replies are posted to the
// connector during the turn; the HTTP response itself is empty.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var act activity.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&act); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid activity JSON")
		return
	}
	if act.Type == "" || act.ChannelID == "" || act.Conversation.ID == "" {
		sendJSONError(w, http.StatusBadRequest, "activity requires type, channelId and conversation.id")
		return
	}
	if act.ChannelID == activity.ChannelAlexa {
		sendJSONError(w, http.StatusBadRequest, "alexa requests are served on /api/alexa")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		if id.ServiceURL != "" && !sameServiceURL(id.ServiceURL, act.ServiceURL) {
			a.logger.Warn("service url mismatch", "token", id.ServiceURL, "activity", act.ServiceURL)
			sendJSONError(w, http.StatusUnauthorized, "service url does not match token")
			return
		}
		if !id.Endorses(act.ChannelID) {
			a.logger.Warn("channel not endorsed by signing key", "channel", act.ChannelID)
			sendJSONError(w, http.StatusUnauthorized, "channel not endorsed")
			return
		}
	}

	if _, err := a.runner.Run(r.Context(), &act, a.sender.SendActivity); err != nil {
		a.logger.Error("turn failed", "error", err, "channel", act.ChannelID, "activity_id", act.ID)
		sendJSONError(w, http.StatusInternalServerError, "turn failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func sameServiceURL(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
