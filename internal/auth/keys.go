// ABOUTME: Signing key discovery through the OpenID metadata document
// ABOUTME: Fetches and caches the JWKS, refreshing on schedule or on an unknown kid

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	// keyRefreshInterval is how long a fetched key set is trusted.
	keyRefreshInterval = 24 * time.Hour
	// missRefreshInterval limits refetches triggered by unknown kids.
	missRefreshInterval = 5 * time.Minute
)

// SigningKey is one verified RSA key from the JWKS.
type SigningKey struct {
	ID           string
	PublicKey    *rsa.PublicKey
	Endorsements []string
}

type openIDMetadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jsonWebKey struct {
	Kty          string   `json:"kty"`
	Use          string   `json:"use,omitempty"`
	Kid          string   `json:"kid"`
	N            string   `json:"n"`
	E            string   `json:"e"`
	Endorsements []string `json:"endorsements,omitempty"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// KeySource resolves key ids to signing keys.
type KeySource struct {
	metadataURL string
	client      *http.Client
	now         func() time.Time

	mu        sync.Mutex
	keys      map[string]*SigningKey
	fetchedAt time.Time
}

// NewKeySource creates a KeySource reading the OpenID metadata at metadataURL.
func NewKeySource(metadataURL string, client *http.Client) *KeySource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySource{
		metadataURL: metadataURL,
		client:      client,
		now:         time.Now,
	}
}

// Key returns the signing key for kid, fetching the key set when it is stale
// or does not contain kid.
func (s *KeySource) Key(ctx context.Context, kid string) (*SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	age := s.now().Sub(s.fetchedAt)
	if s.keys == nil || age > keyRefreshInterval {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	} else if _, ok := s.keys[kid]; !ok && age > missRefreshInterval {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}

	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return key, nil
}

func (s *KeySource) refresh(ctx context.Context) error {
	var meta openIDMetadata
	if err := s.getJSON(ctx, s.metadataURL, &meta); err != nil {
		return fmt.Errorf("fetching openid metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return fmt.Errorf("openid metadata has no jwks_uri")
	}

	var set jsonWebKeySet
	if err := s.getJSON(ctx, meta.JWKSURI, &set); err != nil {
		return fmt.Errorf("fetching signing keys: %w", err)
	}

	keys := make(map[string]*SigningKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			return fmt.Errorf("decoding key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = &SigningKey{ID: k.Kid, PublicKey: pub, Endorsements: k.Endorsements}
	}

	s.keys = keys
	s.fetchedAt = s.now()
	return nil
}

func (s *KeySource) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 || exp.Int64() < 3 {
		return nil, fmt.Errorf("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
