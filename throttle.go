// Package tailthrottle wraps a callback so that calls arriving faster than a
// threshold are rate-limited, while the arguments of the most recent call
// are always delivered eventually.
//
// Two policies are provided and they are deliberately kept apart:
//
//   - Wrap fires the first call of a window immediately and delivers the last
//     call of the window once it closes, tagging every invocation with the
//     Position it occupied in its window.
//   - WrapEdge either fires leading calls immediately and defers calls inside
//     an open window, or, with WithTail, defers every call.
//
// Example usage:
//
//	save := tailthrottle.Wrap(func(ctx context.Context, doc string, pos tailthrottle.Position) {
//		fmt.Println(pos, doc)
//	}, tailthrottle.WithThreshold(100*time.Millisecond))
//
//	save(ctx, "a") // head a
//	save(ctx, "b")
//	save(ctx, "c") // tail c, 100ms after this call
package tailthrottle

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Position identifies where in its throttle window an invocation happened.
type Position uint8

const (
	// Head is an immediate call opening a window, either the very first call
	// or the first one after a window that ended with a Tail.
	Head Position = iota + 1
	// Body is an immediate call opening a window whose predecessor did not
	// deliver a Tail.
	Body
	// Tail is the deferred call delivered after a window closes.
	Tail
)

// String returns the tag used for p in logs and span attributes: "head",
// "body" or "tail". Values outside the defined constants render as
// "Position(n)".
//
// Example:
//
//	fmt.Println(tailthrottle.Tail) // tail
func (p Position) String() string {
	switch p {
	case Head:
		return "head"
	case Body:
		return "body"
	case Tail:
		return "tail"
	}

	return "Position(" + strconv.Itoa(int(p)) + ")"
}

// Wrap returns a throttled version of fn.
//
// A call arriving after the current window has elapsed invokes fn at once,
// tagged Head or Body, and opens a new window. Every call, immediate or not,
// then reschedules the single deferred invocation to run one threshold
// later with that call's arguments, tagged Tail. The Tail is suppressed when
// the call that scheduled it was an immediate Head call, unless
// WithForceTail is set, so an isolated call yields one invocation by
// default and two with WithForceTail.
//
// Immediate invocations run on the calling goroutine; deferred ones run on a
// timer goroutine. fn is never called with internal locks held and may call
// the wrapper again.
//
// The deferred invocation is scheduled before an immediate fn runs. A panic
// in an immediate invocation propagates to the caller, and the window it
// opened stays open: the next call within the threshold is deferred.
// Panics in deferred invocations go to the WithPanicHandler handler.
//
// fn is not validated. A nil fn panics on the first immediate call.
//
// Parameters:
//   - fn: The function to throttle. It receives the resolved context, the
//     call's argument and the Position of the invocation.
//   - opts: WithThreshold, WithForceTail, WithContext and the shared options.
//
// Example:
//
//	notify := tailthrottle.Wrap(func(ctx context.Context, msg string, pos tailthrottle.Position) {
//		fmt.Println(pos, msg)
//	}, tailthrottle.WithThreshold(100*time.Millisecond))
//
//	notify(ctx, "saving")   // head saving, at once
//	notify(ctx, "saving.")
//	notify(ctx, "saving..") // tail saving.., 100ms later
func Wrap[T any](fn func(ctx context.Context, arg T, pos Position), opts ...Option) func(ctx context.Context, arg T) {
	s := newState("tagged", opts)

	return func(ctx context.Context, arg T) {
		ctx = s.scope(ctx)

		s.mu.Lock()
		now := s.opts.clock.Now()

		var (
			immediate bool
			pos       Position
			truncate  bool
		)
		if now.After(s.lastFire.Add(s.opts.threshold)) {
			immediate = true
			pos = Body
			if s.tailed {
				pos = Head
			}
			truncate = !s.opts.forceTail && s.tailed
			s.lastFire = now
			s.tailed = false
		}

		s.schedule(func() func() {
			s.lastFire = now
			s.tailed = true
			if truncate {
				return func() {
					s.log(ctx, "throttle tail suppressed")
				}
			}

			return func() {
				s.log(ctx, "throttle fired", "position", Tail)
				s.fire(ctx, true, func(ctx context.Context) {
					fn(ctx, arg, Tail)
				}, attribute.String("throttle.position", Tail.String()))
			}
		})
		s.mu.Unlock()

		s.log(ctx, "throttle deferred", "delay", s.opts.threshold)

		if !immediate {
			return
		}

		s.log(ctx, "throttle fired", "position", pos)
		s.fire(ctx, false, func(ctx context.Context) {
			fn(ctx, arg, pos)
		}, attribute.String("throttle.position", pos.String()))
	}
}
