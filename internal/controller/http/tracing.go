package http

import (
	"crypto/rand"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext кладёт в контекст запроса входящий traceparent,
// запрос без него начинает новую трассу
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if !trace.SpanContextFromContext(ctx).IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, newRootSpanContext())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newRootSpanContext() trace.SpanContext {
	var (
		traceID trace.TraceID
		spanID  trace.SpanID
	)
	_, _ = rand.Read(traceID[:])
	_, _ = rand.Read(spanID[:])

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}
