package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request correlation ID.
	RequestIDKey contextKey = "request_id"
	// OriginInstanceKey is the context key for the authenticated peer
	// instance code on federation endpoints.
	OriginInstanceKey contextKey = "origin_instance"
)

// CorrelationID assigns each request a correlation ID and injects a
// request-scoped logger into the context. An X-Request-ID supplied by a
// trusted upstream is preserved so decisions can be traced across instances.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.With().Str("request_id", requestID).Logger()
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = reqLogger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the correlation ID from context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithOriginInstance records the authenticated peer instance on the context.
func WithOriginInstance(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, OriginInstanceKey, code)
}

// OriginInstance extracts the authenticated peer instance code, if any.
func OriginInstance(ctx context.Context) string {
	if code, ok := ctx.Value(OriginInstanceKey).(string); ok {
		return code
	}
	return ""
}

// LoggerFromContext extracts the request logger, falling back to a no-op
// logger outside the middleware chain.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		noop := zerolog.Nop()
		return &noop
	}
	return logger
}
