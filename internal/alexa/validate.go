// ABOUTME: Request validation for the Alexa endpoint
// ABOUTME: Checks required ids, the skill id, and the timestamp tolerance

package alexa

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest marks requests rejected before reaching a bot.
var ErrInvalidRequest = errors.New("invalid alexa request")

// Validator checks request envelopes.
type Validator struct {
	// SkillID, when set, must match the session application id.
	SkillID string
	// VerifyTimestamp enables the replay window check.
	VerifyTimestamp bool
	// Tolerance is the maximum allowed clock skew.
	Tolerance time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Validate returns an error wrapping ErrInvalidRequest when env is not acceptable.
func (v Validator) Validate(env *RequestEnvelope) error {
	if env.Session.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidRequest)
	}
	if env.Request.RequestID == "" {
		return fmt.Errorf("%w: missing request id", ErrInvalidRequest)
	}
	if env.Request.Type == "" {
		return fmt.Errorf("%w: missing request type", ErrInvalidRequest)
	}

	if v.SkillID != "" {
		appID := env.Session.Application.ApplicationID
		if appID == "" {
			appID = env.Context.System.Application.ApplicationID
		}
		if appID != v.SkillID {
			return fmt.Errorf("%w: application id %q does not match skill", ErrInvalidRequest, appID)
		}
	}

	if v.VerifyTimestamp {
		ts, err := time.Parse(time.RFC3339, env.Request.Timestamp)
		if err != nil {
			return fmt.Errorf("%w: bad timestamp %q", ErrInvalidRequest, env.Request.Timestamp)
		}
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		skew := now().Sub(ts)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.Tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance (%s)", ErrInvalidRequest, skew.Round(time.Second))
		}
	}
	return nil
}
