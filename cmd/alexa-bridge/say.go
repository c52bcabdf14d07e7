// ABOUTME: The say command, which drives a running bridge the way the Alexa service does
// ABOUTME: Builds a skill request envelope, posts it to /api/alexa, and prints the spoken reply

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/2389/alexa-bridge/internal/alexa"
	"github.com/2389/alexa-bridge/internal/config"
)

type sayOptions struct {
	user    string
	session string
	locale  string
	launch  bool
	text    string
}

// parseSayArgs supports both "--flag value" and "--flag=value" forms.
func parseSayArgs(args []string) (sayOptions, error) {
	opts := sayOptions{
		user:    "cli-user",
		session: "cli-session",
		locale:  "es-ES",
	}

	var words []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--user", "--session", "--locale":
			if !hasValue {
				if i+1 >= len(args) {
					return opts, fmt.Errorf("%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			switch name {
			case "--user":
				opts.user = value
			case "--session":
				opts.session = value
			case "--locale":
				opts.locale = value
			}
		case "--launch":
			opts.launch = true
		default:
			if strings.HasPrefix(arg, "-") {
				return opts, fmt.Errorf("unknown flag: %s", arg)
			}
			words = append(words, arg)
		}
	}

	opts.text = strings.Join(words, " ")
	if !opts.launch && opts.text == "" {
		return opts, fmt.Errorf("nothing to say: pass some text or --launch")
	}
	return opts, nil
}

// buildSayRequest assembles the skill request the Alexa service would send.
func buildSayRequest(cfg *config.Config, opts sayOptions, now time.Time) *alexa.RequestEnvelope {
	skillID := cfg.Alexa.SkillID
	if skillID == "" {
		skillID = "amzn1.ask.skill.alexa-bridge-cli"
	}
	app := alexa.Application{ApplicationID: skillID}
	user := alexa.User{UserID: opts.user}

	req := alexa.Request{
		Type:      alexa.LaunchRequest,
		RequestID: "amzn1.echo-api.request." + uuid.NewString(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Locale:    opts.locale,
	}
	if !opts.launch {
		req.Type = alexa.IntentRequest
		req.Intent = &alexa.Intent{
			Name: cfg.Alexa.UtteranceIntent,
			Slots: map[string]alexa.Slot{
				cfg.Alexa.UtteranceSlot: {Name: cfg.Alexa.UtteranceSlot, Value: opts.text},
			},
		}
	}

	return &alexa.RequestEnvelope{
		Version: "1.0",
		Session: alexa.Session{
			New:         opts.launch,
			SessionID:   opts.session,
			Application: app,
			User:        user,
		},
		Context: alexa.Context{System: alexa.System{
			Application: app,
			User:        user,
		}},
		Request: req,
	}
}

// describeResponse renders the spoken text of a skill response for the terminal.
func describeResponse(body []byte) string {
	speech := gjson.GetBytes(body, "response.outputSpeech.text").String()
	if speech == "" {
		speech = "(no speech)"
	}
	if gjson.GetBytes(body, "response.shouldEndSession").Bool() {
		speech += "\n(session ended)"
	}
	return speech
}

func runSay(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseSayArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	payload, err := json.Marshal(buildSayRequest(cfg, opts, time.Now()))
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(cfg)+"/api/alexa", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending utterance: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}

	_, err = fmt.Fprintln(out, describeResponse(body))
	return err
}
