package application

import (
	"context"
	"time"

	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instruments holds the RED metrics shared by use cases. Supplied via DI; never created per call.
type Instruments struct {
	Tracer       observability.Tracer
	Log          observability.Logger
	ReqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	DurHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

// NewInstruments resolves instruments from tel, falling back to no-ops, and binds service=name on the logger.
func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return Instruments{
		Tracer:       tel.Tracer(),
		Log:          tel.Logger().With(observability.F("service", service)),
		ReqCounter:   metrics.Counter(observability.MUsecaseRequests),
		DurHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Run tracks one use case execution. Callers set Outcome/Status on failure paths
// and call End exactly once, usually from a defer.
type Run struct {
	UseCase string
	Span    trace.Span
	Logger  observability.Logger
	Status  string
	Outcome string

	ctx    context.Context
	inst   Instruments
	start  time.Time
	fields []observability.Field
}

// Begin starts the span and binds a use-case logger onto the returned context.
func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	tracer := in.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := tracer.Start(ctx, spanPrefix+spanName, attrs...)

	logger := logctx.FromOr(ctx, in.Log).With(observability.F("use_case", useCase))
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		UseCase: useCase,
		Span:    span,
		Logger:  logger,
		Status:  "OK",
		Outcome: "success",
		ctx:     ctx,
		inst:    in,
		start:   time.Now(),
	}
}

// Fail marks the run as failed with a machine-readable status.
func (r *Run) Fail(status string) {
	r.Outcome, r.Status = "error", status
}

// Annotate adds fields to the final use_case_done line.
func (r *Run) Annotate(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// End records metrics, closes the span and writes the use_case_done log line.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.Outcome != "error" {
		r.Fail("ERROR")
	}

	if r.Span != nil {
		if err != nil {
			r.Span.RecordError(err)
			r.Span.SetStatus(codes.Error, r.Status)
		} else {
			r.Span.SetStatus(codes.Ok, r.Status)
		}
		r.Span.End()
	}

	if r.inst.ReqCounter != nil {
		r.inst.ReqCounter.Add(1,
			observability.L("use_case", r.UseCase),
			observability.L("outcome", r.Outcome),
		)
	}
	if r.inst.DurHistogram != nil {
		r.inst.DurHistogram.Observe(lat,
			observability.L("use_case", r.UseCase),
		)
	}

	fields := []observability.Field{
		observability.F("outcome", r.Outcome),
		observability.F("status", r.Status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	r.Logger.Info("use_case_done", fields...)
}
