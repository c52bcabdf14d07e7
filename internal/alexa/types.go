// ABOUTME: Alexa Skills Kit request and response envelopes
// ABOUTME: Only the fields the bridge reads or writes are modeled

package alexa

import "encoding/json"

// Request types
const (
	LaunchRequest       = "LaunchRequest"
	IntentRequest       = "IntentRequest"
	SessionEndedRequest = "SessionEndedRequest"
)

// RequestEnvelope is the body Alexa posts to the skill endpoint.
type RequestEnvelope struct {
	Version string  `json:"version"`
	Session Session `json:"session"`
	Context Context `json:"context"`
	Request Request `json:"request"`
}

// Application identifies the skill.
type Application struct {
	ApplicationID string `json:"applicationId"`
}

// User identifies the Amazon account talking to the skill.
type User struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Session is the conversation Alexa keeps open between requests.
type Session struct {
	New         bool                       `json:"new"`
	SessionID   string                     `json:"sessionId"`
	Application Application                `json:"application"`
	Attributes  map[string]json.RawMessage `json:"attributes,omitempty"`
	User        User                       `json:"user"`
}

// Device is the Echo device that heard the user.
type Device struct {
	DeviceID string `json:"deviceId"`
}

// System carries the device and API endpoint for the request.
type System struct {
	Application Application `json:"application"`
	User        User        `json:"user"`
	Device      Device      `json:"device"`
	APIEndpoint string      `json:"apiEndpoint"`
}

// Context is the device context sent with every request.
type Context struct {
	System System `json:"System"`
}

// Slot is one named intent argument.
type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Intent is the resolved user intent of an IntentRequest.
type Intent struct {
	Name               string          `json:"name"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
	Slots              map[string]Slot `json:"slots,omitempty"`
}

// RequestError describes why a session ended with an error.
type RequestError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Request is the request body proper.
type Request struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Timestamp string        `json:"timestamp"`
	Locale    string        `json:"locale,omitempty"`
	Intent    *Intent       `json:"intent,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     *RequestError `json:"error,omitempty"`
}

// OutputSpeech is the text Alexa speaks.
type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the skill's answer.
type Response struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	ShouldEndSession *bool         `json:"shouldEndSession,omitempty"`
}

// ResponseEnvelope is the body returned to Alexa.
type ResponseEnvelope struct {
	Version           string                     `json:"version"`
	SessionAttributes map[string]json.RawMessage `json:"sessionAttributes,omitempty"`
	Response          Response                   `json:"response"`
}
