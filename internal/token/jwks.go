package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/maypok86/otter"
)

var errKeyNotFound = errors.New("signing key not found")

// jwks is the JSON Web Key Set document served by a peer instance.
type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaPublicKey decodes the modulus and exponent of an RSA JWK.
func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, errors.New("zero exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// keyCache fetches and caches peer signing keys. Key sets change rarely, so
// the long TTL keeps the issuing instance off the availability critical path
// for routine validations.
type keyCache struct {
	client *http.Client
	cache  otter.Cache[string, map[string]*rsa.PublicKey]
}

func newKeyCache(client *http.Client, ttl time.Duration) *keyCache {
	cache, err := otter.MustBuilder[string, map[string]*rsa.PublicKey](256).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("token: failed to create key cache: " + err.Error())
	}
	return &keyCache{client: client, cache: cache}
}

// keyFor returns the public key with the given kid from the key set at
// jwksURL, fetching the set on cache miss.
func (c *keyCache) keyFor(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error) {
	if keys, ok := c.cache.Get(jwksURL); ok {
		if key, ok := keys[kid]; ok {
			return key, nil
		}
		// Unknown kid with a fresh set usually means rotation; refetch.
	}

	keys, err := c.fetch(ctx, jwksURL)
	if err != nil {
		return nil, err
	}
	c.cache.Set(jwksURL, keys)

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
	}
	return key, nil
}

func (c *keyCache) fetch(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing keys: unexpected status %d", resp.StatusCode)
	}

	var doc jwks
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			// Skip unusable keys instead of failing the whole set.
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("signing key set contains no usable keys")
	}
	return keys, nil
}
