package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// federatedFromHeader identifies the requesting instance on introspection
// calls so the origin can apply its own trust checks.
const federatedFromHeader = "X-Federated-From"

// introspectionResponse is the wire schema returned by a peer's
// introspection endpoint. Unknown fields are ignored; a missing `active`
// decodes as false, which fails closed.
type introspectionResponse struct {
	Active               bool     `json:"active"`
	Sub                  string   `json:"sub,omitempty"`
	Iss                  string   `json:"iss,omitempty"`
	Aud                  audience `json:"aud,omitempty"`
	Exp                  int64    `json:"exp,omitempty"`
	Iat                  int64    `json:"iat,omitempty"`
	JTI                  string   `json:"jti,omitempty"`
	UniqueID             string   `json:"uniqueID,omitempty"`
	Clearance            string   `json:"clearance,omitempty"`
	CountryOfAffiliation string   `json:"countryOfAffiliation,omitempty"`
	ACPCOI               []string `json:"acpCOI,omitempty"`
	OrganizationType     string   `json:"organizationType,omitempty"`
	InstanceCode         string   `json:"instanceCode,omitempty"`
}

// audience tolerates both string and array forms of the aud claim.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

func (r introspectionResponse) normalize() *Claims {
	return &Claims{
		Subject:              r.Sub,
		Issuer:               r.Iss,
		Audience:             r.Aud,
		ExpiresAt:            time.Unix(r.Exp, 0).UTC(),
		IssuedAt:             time.Unix(r.Iat, 0).UTC(),
		JTI:                  r.JTI,
		UniqueID:             r.UniqueID,
		Clearance:            r.Clearance,
		CountryOfAffiliation: r.CountryOfAffiliation,
		CommunityOfInterest:  r.ACPCOI,
		OrganizationType:     r.OrganizationType,
		InstanceCode:         r.InstanceCode,
	}
}

// introspectRemote posts the token to the origin instance's introspection
// endpoint. Callers are responsible for breaker gating.
func (v *Validator) introspectRemote(ctx context.Context, introspectionURL, rawToken, requestingInstance string) (*introspectionResponse, error) {
	form := url.Values{"token": {rawToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(federatedFromHeader, requestingInstance)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection request: unexpected status %d", resp.StatusCode)
	}

	var parsed introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	return &parsed, nil
}
