package tailthrottle

import "context"

// WrapEdge returns a throttled version of fn that fires on one edge of the
// window only.
//
// By default a call outside any open window invokes fn immediately, and
// calls inside the window are deferred: each one replaces the pending
// invocation, which runs one threshold after the latest call. An immediate
// call also drops any invocation still pending from an earlier window, so
// older arguments are never delivered after newer ones.
//
// With WithTail(true) no call fires immediately; fn only runs once a full
// threshold has passed without further calls.
//
// A panic in an immediate invocation propagates to the caller. Deferred
// invocations run on a timer goroutine, and their panics go to the
// WithPanicHandler handler. fn is not validated: a nil fn panics at call
// time in leading mode, while in tail mode, where every invocation is
// deferred, the call returns normally and the nil-function panic reaches
// the panic handler once the timer fires.
//
// Example:
//
//	// Leading mode: the first resize is applied at once, the last one of
//	// the burst 50ms after it stops.
//	resize := tailthrottle.WrapEdge(func(ctx context.Context, width int) {
//		fmt.Println("resize", width)
//	}, tailthrottle.WithThreshold(50*time.Millisecond))
//
//	// Tail mode: only the last query of a burst is searched.
//	search := tailthrottle.WrapEdge(func(ctx context.Context, q string) {
//		fmt.Println("search", q)
//	}, tailthrottle.WithThreshold(300*time.Millisecond), tailthrottle.WithTail(true))
func WrapEdge[T any](fn func(ctx context.Context, arg T), opts ...Option) func(ctx context.Context, arg T) {
	s := newState("edge", opts)

	return func(ctx context.Context, arg T) {
		ctx = s.scope(ctx)

		s.mu.Lock()
		now := s.opts.clock.Now()

		inWindow := !s.lastFire.IsZero() && now.Before(s.lastFire.Add(s.opts.threshold))
		if s.opts.tail || inWindow {
			s.schedule(func() func() {
				s.lastFire = now

				return func() {
					s.log(ctx, "throttle fired", "deferred", true)
					s.fire(ctx, true, func(ctx context.Context) {
						fn(ctx, arg)
					})
				}
			})
			s.mu.Unlock()

			s.log(ctx, "throttle deferred", "delay", s.opts.threshold)
			return
		}

		s.cancel()
		s.lastFire = now
		s.mu.Unlock()

		s.log(ctx, "throttle fired", "deferred", false)
		s.fire(ctx, false, func(ctx context.Context) {
			fn(ctx, arg)
		})
	}
}
