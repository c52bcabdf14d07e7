// ABOUTME: Bot Framework connector REST client for replies and proactive messages
// ABOUTME: Authenticates with an app id and password through the client credentials flow

package botframework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/config"
)

// ResourceResponse is returned by the connector for a posted activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// Connector posts activities to a channel's service URL.
type Connector struct {
	client *http.Client
	logger *slog.Logger
}

// NewConnector creates a Connector. With an empty app id requests are sent
// without a token, which is what the local emulator expects.
func NewConnector(cfg config.BotFrameworkConfig, base *http.Client, logger *slog.Logger) *Connector {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := base
	if cfg.AppID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.Scope},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = base.Timeout
	}

	return &Connector{
		client: client,
		logger: logger.With("component", "connector"),
	}
}

// SendActivity posts out to its conversation, as a reply when ReplyToID is set.
func (c *Connector) SendActivity(ctx context.Context, out *activity.Activity) error {
	if out.ServiceURL == "" {
		return fmt.Errorf("activity has no service url")
	}
	if out.Conversation.ID == "" {
		return fmt.Errorf("activity has no conversation id")
	}

	endpoint := activitiesURL(out.ServiceURL, out.Conversation.ID, out.ReplyToID)
	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("posting activity: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rr ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err == nil && rr.ID != "" {
		c.logger.Debug("activity posted", "conversation", out.Conversation.ID, "id", rr.ID)
	}
	return nil
}

// SendToConversation posts text to the referenced conversation outside of a turn.
func (c *Connector) SendToConversation(ctx context.Context, ref activity.ConversationReference, text string) error {
	out := activity.NewMessage(text, "")
	ref.Apply(out)
	return c.SendActivity(ctx, out)
}

func activitiesURL(serviceURL, conversationID, replyToID string) string {
	u := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if replyToID != "" {
		u += "/" + url.PathEscape(replyToID)
	}
	return u
}
