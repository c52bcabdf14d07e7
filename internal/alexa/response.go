// ABOUTME: Builds the Alexa response envelope from the replies of a turn
// ABOUTME: Speech is plain text and the session stays open while a reply expects input

package alexa

import (
	"github.com/2389/alexa-bridge/internal/activity"
	"github.com/2389/alexa-bridge/internal/speech"
)

const responseVersion = "1.0"

// BuildResponse merges replies into one response. SessionEndedRequest
// responses carry no speech.
func BuildResponse(requestType string, replies []*activity.Activity) *ResponseEnvelope {
	env := &ResponseEnvelope{Version: responseVersion}
	if requestType == SessionEndedRequest {
		return env
	}

	texts := make([]string, 0, len(replies))
	expecting := false
	for _, r := range replies {
		if r.Type != "" && r.Type != activity.TypeMessage {
			continue
		}
		texts = append(texts, r.Text)
		if r.InputHint == activity.ExpectingInput {
			expecting = true
		}
	}

	if text := speech.Join(texts); text != "" {
		env.Response.OutputSpeech = &OutputSpeech{Type: "PlainText", Text: text}
	}
	end := !expecting
	env.Response.ShouldEndSession = &end
	return env
}
