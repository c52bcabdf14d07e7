// ABOUTME: Bot Framework channel token verification for inbound activities
// ABOUTME: Validates RS256 JWTs against the channel's published signing keys

package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrUnknownKey   = errors.New("unknown signing key")
)

// ChannelIssuer is the issuer of tokens minted by the Bot Framework channel service.
const ChannelIssuer = "https://api.botframework.com"

// clockSkew is tolerated on exp and nbf.
const clockSkew = 5 * time.Minute

// ChannelClaims are the claims the channel service puts in its tokens.
type ChannelClaims struct {
	ServiceURL string `json:"serviceurl,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Identity, error)
}

// ChannelValidator verifies tokens sent by the Bot Framework channel service
// to the bot's messaging endpoint.
type ChannelValidator struct {
	appID  string
	issuer string
	keys   *KeySource
	now    func() time.Time
}

// NewChannelValidator creates a validator accepting tokens for appID whose
// signing keys come from keys.
func NewChannelValidator(appID string, keys *KeySource) *ChannelValidator {
	return &ChannelValidator{
		appID:  appID,
		issuer: ChannelIssuer,
		keys:   keys,
		now:    time.Now,
	}
}

// Verify parses and validates tokenString and returns the caller identity.
func (v *ChannelValidator) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	var endorsements []string

	claims := &ChannelClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: kid", ErrMissingClaim)
		}
		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, err
		}
		endorsements = key.Endorsements
		return key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, ErrUnknownKey):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrUnknownKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Identity{
		AppID:        v.appID,
		ServiceURL:   claims.ServiceURL,
		Endorsements: endorsements,
	}, nil
}

// Identity is the authenticated caller of the messaging endpoint.
type Identity struct {
	AppID        string
	ServiceURL   string
	Endorsements []string
}

// Endorses reports whether the signing key was endorsed for channelID.
// Keys that carry no endorsements accept every channel.
func (id *Identity) Endorses(channelID string) bool {
	if len(id.Endorsements) == 0 {
		return true
	}
	return slices.Contains(id.Endorsements, channelID)
}
