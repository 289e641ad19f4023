// Package engine holds the amenity booking and visitor pass rules. It decides
// who may do what and validates input; every state change is delegated to a
// single atomic store call.
package engine

import (
	"context"
	"log/slog"
	"time"

	"estate/amenity-service/internal/clock"
	"estate/amenity-service/internal/models"
	"estate/amenity-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPassValidity = 30 * time.Minute
	defaultSweepBatch   = 200
	codeAttempts        = 5
	minReasonLength     = 5
)

type Options struct {
	Clock          clock.Clock
	Location       *time.Location
	PassValidity   time.Duration
	SweepBatchSize int
	GenerateCode   CodeGenerator
	Logger         *slog.Logger
}

type Engine struct {
	store        store.Store
	clock        clock.Clock
	location     *time.Location
	passValidity time.Duration
	sweepBatch   int
	generateCode CodeGenerator
	logger       *slog.Logger
	tracer       trace.Tracer
}

func New(st store.Store, options Options) *Engine {
	e := &Engine{
		store:        st,
		clock:        options.Clock,
		location:     options.Location,
		passValidity: options.PassValidity,
		sweepBatch:   options.SweepBatchSize,
		generateCode: options.GenerateCode,
		logger:       options.Logger,
		tracer:       otel.Tracer("estate/amenity-service/engine"),
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.location == nil {
		e.location = time.UTC
	}
	if e.passValidity <= 0 {
		e.passValidity = DefaultPassValidity
	}
	if e.sweepBatch <= 0 {
		e.sweepBatch = defaultSweepBatch
	}
	if e.generateCode == nil {
		e.generateCode = GeneratePassCode
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func requireUUID(name, value string) error {
	if value == "" {
		return store.Validation("%s is required", name)
	}
	if !isUUID(value) {
		return store.Validation("%s must be a UUID", name)
	}
	return nil
}

// today is the calendar date at the building.
func (e *Engine) today() string {
	return e.clock.Now().In(e.location).Format(models.DateLayout)
}
