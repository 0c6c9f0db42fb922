package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dive-coalition/federation/internal/api/problem"
	"github.com/dive-coalition/federation/internal/token"
)

// PeerClaimsKey is the context key for the authenticated peer subject's
// claims on federation endpoints.
const PeerClaimsKey contextKey = "peer_claims"

// TokenValidator validates a bearer token presented by a federation peer.
type TokenValidator interface {
	Validate(ctx context.Context, req token.ValidateRequest) token.IntrospectionResult
}

// PeerAuth authenticates federation peers. The caller asserts its instance
// code in X-Federated-From and authenticates with a bearer token, which is
// validated against that instance. Missing trust is a 403, an invalid token
// a 401; both fail closed before the handler runs.
func PeerAuth(validator TokenValidator, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.ToUpper(strings.TrimSpace(r.Header.Get("X-Federated-From")))
			if origin == "" {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest,
					"Missing X-Federated-From header", nil, env)
				return
			}

			raw := bearerFromHeader(r)
			if raw == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Missing bearer token", nil, env)
				return
			}

			result := validator.Validate(r.Context(), token.ValidateRequest{
				Token:          raw,
				OriginInstance: origin,
			})
			if !result.Active {
				if result.Error == token.CodeNoBilateralTrust {
					problem.Write(w, r, http.StatusForbidden, problem.TypeNoTrust,
						"No bilateral trust with requesting instance", nil, env)
					return
				}
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
					"Token validation failed", nil, env,
					problem.WithDetail(result.Error))
				return
			}

			ctx := WithOriginInstance(r.Context(), origin)
			if result.Claims != nil {
				ctx = context.WithValue(ctx, PeerClaimsKey, result.Claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PeerClaims extracts the authenticated peer subject's claims, if any.
func PeerClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(PeerClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

func bearerFromHeader(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
