// Package token validates bearer tokens issued by federation peers and mints
// short-lived exchange tokens for delegated cross-instance access.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the normalized subject attributes extracted from a validated
// token, independent of which path (local verification or remote
// introspection) produced them.
type Claims struct {
	Subject              string    `json:"sub"`
	Issuer               string    `json:"iss"`
	Audience             []string  `json:"aud,omitempty"`
	ExpiresAt            time.Time `json:"exp"`
	IssuedAt             time.Time `json:"iat"`
	JTI                  string    `json:"jti,omitempty"`
	UniqueID             string    `json:"uniqueID,omitempty"`
	Clearance            string    `json:"clearance,omitempty"`
	CountryOfAffiliation string    `json:"countryOfAffiliation,omitempty"`
	CommunityOfInterest  []string  `json:"acpCOI,omitempty"`
	OrganizationType     string    `json:"organizationType,omitempty"`
	InstanceCode         string    `json:"instanceCode,omitempty"`
}

// coalitionClaims is the JWT claim set used by coalition identity providers.
// The attribute names match what the IdP protocol mappers emit.
type coalitionClaims struct {
	UniqueID             string   `json:"uniqueID,omitempty"`
	Clearance            string   `json:"clearance,omitempty"`
	CountryOfAffiliation string   `json:"countryOfAffiliation,omitempty"`
	ACPCOI               []string `json:"acpCOI,omitempty"`
	OrganizationType     string   `json:"organizationType,omitempty"`
	InstanceCode         string   `json:"instanceCode,omitempty"`
	jwt.RegisteredClaims
}

func (c *coalitionClaims) normalize() *Claims {
	claims := &Claims{
		Subject:              c.Subject,
		Issuer:               c.Issuer,
		Audience:             c.Audience,
		JTI:                  c.ID,
		UniqueID:             c.UniqueID,
		Clearance:            c.Clearance,
		CountryOfAffiliation: c.CountryOfAffiliation,
		CommunityOfInterest:  c.ACPCOI,
		OrganizationType:     c.OrganizationType,
		InstanceCode:         c.InstanceCode,
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	return claims
}

// IntrospectionResult is the outcome of validating a token, from either
// validation path. It is ephemeral and cached only briefly.
type IntrospectionResult struct {
	Active         bool      `json:"active"`
	Claims         *Claims   `json:"claims,omitempty"`
	OriginInstance string    `json:"origin_instance,omitempty"`
	ValidatedAt    time.Time `json:"validated_at"`
	TrustVerified  bool      `json:"trust_verified"`
	ScopesAllowed  []string  `json:"scopes_allowed,omitempty"`
	Error          string    `json:"error,omitempty"`
	CacheHit       bool      `json:"cache_hit"`
	LatencyMs      int64     `json:"latency_ms"`
}
