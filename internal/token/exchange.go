package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dive-coalition/federation/internal/trust"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidGrant is returned when an exchange is refused: no trust edge, or
// an inactive subject token. The name matches the RFC 8693 error code the
// API layer reports.
var ErrInvalidGrant = errors.New("invalid_grant")

// Provenance records where an exchange token came from and under which trust
// edge it was minted. It travels inside the token as the token_exchange
// claim.
type Provenance struct {
	OriginalIssuer    string `json:"original_issuer"`
	OriginalInstance  string `json:"original_instance"`
	TargetInstance    string `json:"target_instance"`
	TrustLevel        string `json:"trust_level"`
	MaxClassification string `json:"max_classification"`
}

// exchangeClaims is the claim set of a minted exchange token.
type exchangeClaims struct {
	UniqueID             string     `json:"uniqueID,omitempty"`
	Clearance            string     `json:"clearance,omitempty"`
	CountryOfAffiliation string     `json:"countryOfAffiliation,omitempty"`
	ACPCOI               []string   `json:"acpCOI,omitempty"`
	OrganizationType     string     `json:"organizationType,omitempty"`
	InstanceCode         string     `json:"instanceCode,omitempty"`
	Scope                string     `json:"scope,omitempty"`
	TokenExchange        Provenance `json:"token_exchange"`
	jwt.RegisteredClaims
}

// ExchangerConfig configures exchange-token minting.
type ExchangerConfig struct {
	// InstanceCode is the local instance, which becomes the token issuer.
	InstanceCode string
	// KeyID is published in the token header so verifiers can locate the
	// matching public key in this instance's key set.
	KeyID string
	// TTL is clamped to 15 minutes: exchange tokens grant delegated
	// cross-domain access and must outlive nothing.
	TTL time.Duration
}

// Exchanger mints short-lived, narrowly-scoped exchange tokens for use
// against a target instance, signed with this instance's private key.
type Exchanger struct {
	cfg    ExchangerConfig
	key    *rsa.PrivateKey
	matrix *trust.Matrix
	now    func() time.Time
}

// NewExchanger creates an exchanger signing with the given private key.
func NewExchanger(cfg ExchangerConfig, key *rsa.PrivateKey, matrix *trust.Matrix) *Exchanger {
	if cfg.TTL <= 0 || cfg.TTL > 15*time.Minute {
		cfg.TTL = 15 * time.Minute
	}
	return &Exchanger{cfg: cfg, key: key, matrix: matrix, now: time.Now}
}

// ExchangeRequest carries a validated subject token result and the desired
// target instance.
type ExchangeRequest struct {
	Subject         IntrospectionResult
	OriginInstance  string
	TargetInstance  string
	RequestedScopes []string
}

// ExchangeResponse is the minted token plus its effective grant.
type ExchangeResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	Scopes      []string `json:"scopes"`
}

// Exchange mints an exchange token for the subject toward the target
// instance. It fails with ErrInvalidGrant when the origin→target trust edge
// is absent or the subject token is not active. Granted scopes are always a
// subset of the edge's allowed scopes.
func (e *Exchanger) Exchange(req ExchangeRequest) (*ExchangeResponse, error) {
	edge, ok := e.matrix.VerifyTrust(req.OriginInstance, req.TargetInstance)
	if !ok {
		return nil, fmt.Errorf("%w: no bilateral trust %s->%s", ErrInvalidGrant, req.OriginInstance, req.TargetInstance)
	}
	if !req.Subject.Active || req.Subject.Claims == nil {
		return nil, fmt.Errorf("%w: subject token is not active", ErrInvalidGrant)
	}

	subject := req.Subject.Claims
	scopes := edge.FilterScopes(req.RequestedScopes)
	now := e.now()
	expiry := now.Add(e.cfg.TTL)

	claims := &exchangeClaims{
		UniqueID:             subject.UniqueID,
		Clearance:            subject.Clearance,
		CountryOfAffiliation: subject.CountryOfAffiliation,
		ACPCOI:               subject.CommunityOfInterest,
		OrganizationType:     subject.OrganizationType,
		InstanceCode:         e.cfg.InstanceCode,
		Scope:                joinScopes(scopes),
		TokenExchange: Provenance{
			OriginalIssuer:    subject.Issuer,
			OriginalInstance:  req.OriginInstance,
			TargetInstance:    req.TargetInstance,
			TrustLevel:        string(edge.TrustLevel),
			MaxClassification: edge.MaxClassification,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.cfg.InstanceCode,
			Subject:   subject.Subject,
			Audience:  jwt.ClaimStrings{req.TargetInstance},
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if e.cfg.KeyID != "" {
		tok.Header["kid"] = e.cfg.KeyID
	}
	signed, err := tok.SignedString(e.key)
	if err != nil {
		return nil, fmt.Errorf("sign exchange token: %w", err)
	}

	return &ExchangeResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(e.cfg.TTL.Seconds()),
		Scopes:      scopes,
	}, nil
}

// VerifyExchangeToken parses and verifies an exchange token against the
// issuing instance's public key, returning normalized claims and provenance.
func VerifyExchangeToken(rawToken string, pub *rsa.PublicKey) (*Claims, *Provenance, error) {
	parsed, err := jwt.ParseWithClaims(rawToken, &exchangeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return pub, nil
	})
	if err != nil {
		return nil, nil, err
	}
	claims, ok := parsed.Claims.(*exchangeClaims)
	if !ok || !parsed.Valid {
		return nil, nil, jwt.ErrTokenInvalidClaims
	}

	normalized := &Claims{
		Subject:              claims.Subject,
		Issuer:               claims.Issuer,
		Audience:             claims.Audience,
		JTI:                  claims.ID,
		UniqueID:             claims.UniqueID,
		Clearance:            claims.Clearance,
		CountryOfAffiliation: claims.CountryOfAffiliation,
		CommunityOfInterest:  claims.ACPCOI,
		OrganizationType:     claims.OrganizationType,
		InstanceCode:         claims.InstanceCode,
	}
	if claims.ExpiresAt != nil {
		normalized.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		normalized.IssuedAt = claims.IssuedAt.Time
	}
	provenance := claims.TokenExchange
	return normalized, &provenance, nil
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
