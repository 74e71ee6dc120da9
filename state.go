package tailthrottle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blackorder/tailthrottle/clock"
)

const spanName = "tailthrottle.fire"

// state is owned by exactly one wrapper closure. It is shared between the
// calling goroutines and the goroutine of the pending timer, so every field
// below mu is guarded by it.
type state struct {
	id     string
	policy string
	opts   options

	mu       sync.Mutex
	lastFire time.Time
	tailed   bool
	pending  clock.Timer
	gen      uint64
}

func newState(policy string, opts []Option) *state {
	return &state{
		id:     uuid.NewString(),
		policy: policy,
		opts:   newOptions(opts),
		tailed: true,
	}
}

// scope resolves the context handed to the wrapped function.
func (s *state) scope(ctx context.Context) context.Context {
	if s.opts.ctx != nil {
		return s.opts.ctx
	}
	if ctx == nil {
		return context.Background()
	}

	return ctx
}

// schedule replaces the pending timer. When the timer fires, onFire runs
// under mu and returns the work to do once mu is released, or nil.
// Must be called with mu held; the caller logs the deferral after Unlock.
func (s *state) schedule(onFire func() func()) {
	s.cancel()

	gen := s.gen
	s.pending = s.opts.clock.AfterFunc(s.opts.threshold, func() {
		s.mu.Lock()
		if gen != s.gen {
			// Stopped after it had already started firing.
			s.mu.Unlock()
			return
		}
		s.pending = nil
		deliver := onFire()
		s.mu.Unlock()

		if deliver != nil {
			deliver()
		}
	})
}

// cancel stops the pending timer, if any. Must be called with mu held.
func (s *state) cancel() {
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// fire invokes call inside a span. Deferred invocations run on the timer
// goroutine, so their panics are recovered and handed to the panic handler.
func (s *state) fire(ctx context.Context, deferred bool, call func(ctx context.Context), attrs ...attribute.KeyValue) {
	if deferred {
		defer func() {
			if rec := recover(); rec != nil {
				s.panicked(ctx, rec)
			}
		}()
	}

	attrs = append(attrs,
		attribute.String("throttle.id", s.id),
		attribute.String("throttle.policy", s.policy),
		attribute.Bool("throttle.deferred", deferred),
	)
	ctx, span := s.opts.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()

	call(ctx)
}

func (s *state) panicked(ctx context.Context, rec any) {
	if s.opts.onPanic != nil {
		s.opts.onPanic(ctx, rec)
		return
	}

	logger := s.opts.logFn()
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "throttle deferred call panicked",
		"throttle_id", s.id,
		"panic", fmt.Sprint(rec),
		"trace", string(debug.Stack()),
	)
}

// log must not be called with mu held: the logger may call back into the
// wrapper.
func (s *state) log(ctx context.Context, msg string, args ...any) {
	logger := s.opts.logFn()
	if logger == nil {
		return
	}

	logger.DebugContext(ctx, msg, append([]any{"throttle_id", s.id, "policy", s.policy}, args...)...)
}
