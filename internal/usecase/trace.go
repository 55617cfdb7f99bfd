package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var boardTracer = otel.Tracer("scoreboard/internal/usecase")

// startBoardSpan opens a child span tagged with the board request identity.
// Requests arriving without a sampled parent stay untraced.
func startBoardSpan(ctx context.Context, name string, req BoardRequest) (context.Context, trace.Span) {
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return boardTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("board.sport", req.Sport),
		attribute.String("board.league_id", req.LeagueID),
		attribute.Int("board.rows", req.Rows),
	))
}
