// Package middleware provides the gin middleware of the quote API: request
// and correlation IDs, gateway auth, request logging, panic recovery and
// request deadlines.
package middleware

import (
	"context"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

const (
	// HeaderRequestID identifies a single request.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID identifies a chain of requests across services.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyRequestID is the gin context key holding the request ID.
	ContextKeyRequestID = "request_id"

	// ContextKeyCorrelationID is the gin context key holding the correlation ID.
	ContextKeyCorrelationID = "correlation_id"

	// maxIDLength bounds accepted inbound IDs.
	maxIDLength = 128
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
)

// idSpec describes one propagated ID.
type idSpec struct {
	header  string
	ginKey  string
	ctxKey  ctxKey
	withLog func(context.Context, string) context.Context
}

var (
	requestIDSpec = idSpec{
		header:  HeaderRequestID,
		ginKey:  ContextKeyRequestID,
		ctxKey:  requestIDKey,
		withLog: logging.WithRequestID,
	}
	correlationIDSpec = idSpec{
		header:  HeaderCorrelationID,
		ginKey:  ContextKeyCorrelationID,
		ctxKey:  correlationIDKey,
		withLog: logging.WithCorrelationID,
	}
)

// RequestID returns middleware that adopts the caller's X-Request-ID or
// generates a UUID. The ID is echoed in the response, stored on the gin
// context, and put on the request context for the logger and the webhook
// client.
func RequestID() gin.HandlerFunc {
	return idMiddleware(requestIDSpec)
}

// CorrelationID is RequestID for X-Correlation-ID, which callers keep
// constant across the requests of one workflow.
func CorrelationID() gin.HandlerFunc {
	return idMiddleware(correlationIDSpec)
}

func idMiddleware(spec idSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(spec.header)
		if !acceptableID(id) {
			id = uuid.NewString()
		}

		c.Set(spec.ginKey, id)
		c.Header(spec.header, id)

		ctx := context.WithValue(c.Request.Context(), spec.ctxKey, id)
		c.Request = c.Request.WithContext(spec.withLog(ctx, id))

		c.Next()
	}
}

// acceptableID rejects empty, oversized or non-printable inbound IDs so
// they never reach log lines or downstream headers.
func acceptableID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}

	for _, r := range id {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation ID stored by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

// RequestIDFromContext returns the request ID carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, requestIDKey)
}

// CorrelationIDFromContext returns the correlation ID carried by ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, correlationIDKey)
}

// ContextWithRequestID returns ctx carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID returns ctx carrying the correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func idFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(key).(string)

	return id
}
