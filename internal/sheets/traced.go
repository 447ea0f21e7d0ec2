package sheets

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/phillip-england/openhouse/internal/sheets"

// WithTracing wraps a gateway so every spreadsheet round-trip becomes a span.
// A nil provider uses the global one.
func WithTracing(g Gateway, tp trace.TracerProvider) Gateway {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracedGateway{next: g, tracer: tp.Tracer(tracerName)}
}

type tracedGateway struct {
	next   Gateway
	tracer trace.Tracer
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (g *tracedGateway) Open(ctx context.Context, id string) (Spreadsheet, error) {
	ctx, span := g.tracer.Start(ctx, "sheets.Open", trace.WithAttributes(attribute.String("sheets.spreadsheet", id)))
	ss, err := g.next.Open(ctx, id)
	finish(span, err)
	if err != nil {
		return nil, err
	}
	return &tracedSpreadsheet{next: ss, tracer: g.tracer}, nil
}

type tracedSpreadsheet struct {
	next   Spreadsheet
	tracer trace.Tracer
}

func (s *tracedSpreadsheet) ID() string { return s.next.ID() }

func (s *tracedSpreadsheet) attrs(title string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("sheets.spreadsheet", s.next.ID()),
		attribute.String("sheets.worksheet", title),
	)
}

func (s *tracedSpreadsheet) Worksheet(ctx context.Context, title string) (Worksheet, error) {
	ctx, span := s.tracer.Start(ctx, "sheets.Worksheet", s.attrs(title))
	ws, err := s.next.Worksheet(ctx, title)
	finish(span, err)
	if err != nil {
		return nil, err
	}
	return &tracedWorksheet{next: ws, spreadsheet: s}, nil
}

func (s *tracedSpreadsheet) AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error) {
	ctx, span := s.tracer.Start(ctx, "sheets.AddWorksheet", s.attrs(title))
	ws, err := s.next.AddWorksheet(ctx, title, rows, cols)
	finish(span, err)
	if err != nil {
		return nil, err
	}
	return &tracedWorksheet{next: ws, spreadsheet: s}, nil
}

type tracedWorksheet struct {
	next        Worksheet
	spreadsheet *tracedSpreadsheet
}

func (w *tracedWorksheet) Title() string { return w.next.Title() }

func (w *tracedWorksheet) ColumnValues(ctx context.Context, col int) ([]string, error) {
	ctx, span := w.spreadsheet.tracer.Start(ctx, "sheets.ColumnValues", w.spreadsheet.attrs(w.next.Title()))
	span.SetAttributes(attribute.Int("sheets.column", col))
	values, err := w.next.ColumnValues(ctx, col)
	finish(span, err)
	return values, err
}

func (w *tracedWorksheet) AppendRow(ctx context.Context, cells []string) error {
	ctx, span := w.spreadsheet.tracer.Start(ctx, "sheets.AppendRow", w.spreadsheet.attrs(w.next.Title()))
	err := w.next.AppendRow(ctx, cells)
	finish(span, err)
	return err
}
