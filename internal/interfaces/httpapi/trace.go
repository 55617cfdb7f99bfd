package httpapi

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const handlerSpanPrefix = "httpapi.Handler."

var apiTracer = otel.Tracer("scoreboard/internal/interfaces/httpapi")

// startSpan opens a child span for handler entry points only. Middleware and
// response helpers pass through untraced so filtered routes like /healthz
// never produce standalone root spans.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	valid := trace.SpanFromContext(ctx).SpanContext().IsValid()
	if !valid || !strings.HasPrefix(name, handlerSpanPrefix) {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return apiTracer.Start(ctx, name)
}
