package tailthrottle

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blackorder/tailthrottle/clock"
)

// DefaultThreshold is the window used when no positive threshold is given.
const DefaultThreshold = 250 * time.Millisecond

// Option configures a wrapper built by Wrap or WrapEdge. Options are applied
// in order, so a later option overrides an earlier one of the same kind.
type Option func(*options)

type options struct {
	threshold time.Duration
	ctx       context.Context
	forceTail bool
	tail      bool
	clock     clock.Clock
	logFn     func() *slog.Logger
	tracer    trace.Tracer
	onPanic   func(ctx context.Context, rec any)
}

// WithThreshold sets the minimum spacing between executed calls. Values
// that are zero or negative select DefaultThreshold.
//
// Example:
//
//	save := tailthrottle.Wrap(fn, tailthrottle.WithThreshold(500*time.Millisecond))
func WithThreshold(d time.Duration) Option {
	return func(o *options) {
		o.threshold = d
	}
}

// WithContext binds ctx as the context every invocation of the wrapped
// function receives. Without it, the context passed to the wrapper at call
// time is used. The deferred invocation receives the context of the call
// that scheduled it.
//
// Example:
//
//	// Keep delivering after the request that triggered the save has ended.
//	save := tailthrottle.Wrap(fn, tailthrottle.WithContext(context.Background()))
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithForceTail makes Wrap deliver a Tail call even when the window held a
// single immediate call. It has no effect on WrapEdge.
//
// Example:
//
//	ping := tailthrottle.Wrap(fn, tailthrottle.WithForceTail(true))
//	ping(ctx, "db-1") // head db-1, then tail db-1 one threshold later
func WithForceTail(force bool) Option {
	return func(o *options) {
		o.forceTail = force
	}
}

// WithTail switches WrapEdge to trailing-only mode: no call fires
// immediately and only the last call of each burst is delivered. It has no
// effect on Wrap.
//
// Example:
//
//	search := tailthrottle.WrapEdge(fn, tailthrottle.WithTail(true))
func WithTail(tail bool) Option {
	return func(o *options) {
		o.tail = tail
	}
}

// WithClock replaces the wall clock the wrapper reads and schedules its
// deferred invocation on. A nil clock is ignored. It is mostly useful in
// tests, together with clock.NewFake.
//
// Example:
//
//	clk := clock.NewFake(time.Now())
//	save := tailthrottle.Wrap(fn, tailthrottle.WithClock(clk))
//	save(ctx, "a")
//	clk.Advance(tailthrottle.DefaultThreshold) // runs the pending tail, if any
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets a function resolving the logger at event time, so the
// logger can be swapped after the wrapper is built. A nil-returning logFn
// disables logging. Records are emitted at debug level, except for panics
// caught by the default panic handler, which are logged at error level.
// The logger is never called with internal locks held.
//
// Example:
//
//	save := tailthrottle.Wrap(fn, tailthrottle.WithLogger(func() *slog.Logger {
//		return slog.Default()
//	}))
func WithLogger(logFn func() *slog.Logger) Option {
	return func(o *options) {
		o.logFn = logFn
	}
}

// WithTracer records a span around every invocation of the wrapped function.
// A nil tracer is ignored; the default is the OpenTelemetry no-op tracer.
//
// Example:
//
//	save := tailthrottle.Wrap(fn, tailthrottle.WithTracer(otel.Tracer("store")))
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithPanicHandler receives panics raised by deferred invocations. Panics in
// immediate invocations are never recovered and reach the caller. Without a
// handler, deferred panics are logged with their stack trace.
//
// Example:
//
//	save := tailthrottle.Wrap(fn, tailthrottle.WithPanicHandler(func(ctx context.Context, rec any) {
//		errs <- fmt.Errorf("deferred save: %v", rec)
//	}))
func WithPanicHandler(h func(ctx context.Context, rec any)) Option {
	return func(o *options) {
		o.onPanic = h
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:  clock.Real(),
		logFn:  func() *slog.Logger { return nil },
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.threshold <= 0 {
		o.threshold = DefaultThreshold
	}
	if o.logFn == nil {
		o.logFn = func() *slog.Logger { return nil }
	}

	return o
}
