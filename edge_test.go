package tailthrottle

import (
	"context"
	"reflect"
	"runtime"
	"testing"

	"github.com/blackorder/tailthrottle/clock"
)

func TestWrapEdge(t *testing.T) {
	testCases := []struct {
		name  string
		tail  bool
		steps []step
		want  []call
	}{
		{
			name:  "isolated call fires immediately",
			steps: []step{{0, "A"}},
			want:  []call{{arg: "A", at: 0}},
		},
		{
			name:  "spaced calls all fire immediately",
			steps: []step{{0, "A"}, {ms(100), "B"}, {ms(250), "C"}},
			want:  []call{{arg: "A", at: 0}, {arg: "B", at: ms(100)}, {arg: "C", at: ms(250)}},
		},
		{
			name:  "burst delivers first and last",
			steps: []step{{0, "A"}, {ms(30), "B"}, {ms(60), "C"}},
			want:  []call{{arg: "A", at: 0}, {arg: "C", at: ms(160)}},
		},
		{
			name:  "deferred call opens its own window",
			steps: []step{{0, "A"}, {ms(60), "B"}, {ms(170), "C"}, {ms(180), "D"}},
			want:  []call{{arg: "A", at: 0}, {arg: "B", at: ms(160)}, {arg: "C", at: ms(170)}, {arg: "D", at: ms(280)}},
		},
		{
			name:  "immediate call drops the stale pending one",
			steps: []step{{0, "A"}, {ms(50), "B"}, {ms(120), "C"}},
			want:  []call{{arg: "A", at: 0}, {arg: "C", at: ms(120)}},
		},
		{
			name:  "tail mode defers an isolated call",
			tail:  true,
			steps: []step{{0, "A"}},
			want:  []call{{arg: "A", at: ms(100)}},
		},
		{
			name:  "tail mode delivers only the last of a burst",
			tail:  true,
			steps: []step{{0, "A"}, {ms(30), "B"}, {ms(60), "C"}},
			want:  []call{{arg: "C", at: ms(160)}},
		},
		{
			name:  "tail mode with spaced calls",
			tail:  true,
			steps: []step{{0, "A"}, {ms(200), "B"}},
			want:  []call{{arg: "A", at: ms(100)}, {arg: "B", at: ms(300)}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := clock.NewFake(epoch)
			rec := newRecorder(clk)

			wrapped := WrapEdge(rec.edge,
				WithThreshold(ms(100)),
				WithTail(tc.tail),
				WithClock(clk),
			)
			drive(clk, wrapped, tc.steps)

			if got := rec.snapshot(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("calls mismatch\ngot:  %v\nwant: %v", got, tc.want)
			}
			if n := clk.Pending(); n != 0 {
				t.Errorf("Expected no pending timers, got %d", n)
			}
		})
	}
}

func TestWrapEdgeTailModeNeverFiresImmediately(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := newRecorder(clk)
	wrapped := WrapEdge(rec.edge, WithThreshold(ms(100)), WithTail(true), WithClock(clk))

	wrapped(context.Background(), "A")
	if got := len(rec.snapshot()); got != 0 {
		t.Fatalf("Expected no immediate call, got %d", got)
	}

	clk.Advance(ms(99))
	if got := len(rec.snapshot()); got != 0 {
		t.Fatalf("Expected no call before the threshold, got %d", got)
	}

	clk.Advance(ms(1))
	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("Expected 1 call at the threshold, got %d", got)
	}
}

func TestWrapEdgePanics(t *testing.T) {
	clk := clock.NewFake(epoch)
	var recovered []any
	wrapped := WrapEdge(func(context.Context, string) {
		panic("edge boom")
	},
		WithThreshold(ms(100)),
		WithTail(true),
		WithClock(clk),
		WithPanicHandler(func(_ context.Context, rec any) {
			recovered = append(recovered, rec)
		}),
	)

	wrapped(context.Background(), "A")
	clk.Advance(ms(100))

	if !reflect.DeepEqual(recovered, []any{"edge boom"}) {
		t.Errorf("Expected handler to receive the panic, got %v", recovered)
	}
}

func TestWrapEdgeScope(t *testing.T) {
	t.Run("call site context", func(t *testing.T) {
		clk := clock.NewFake(epoch)

		var seen []any
		wrapped := WrapEdge(func(ctx context.Context, _ string) {
			seen = append(seen, ctx.Value(ctxKey{}))
		}, WithThreshold(ms(100)), WithClock(clk))

		wrapped(context.WithValue(context.Background(), ctxKey{}, "first"), "A")
		clk.Advance(ms(10))
		wrapped(context.WithValue(context.Background(), ctxKey{}, "second"), "B")
		clk.Advance(ms(100))

		if want := []any{"first", "second"}; !reflect.DeepEqual(seen, want) {
			t.Errorf("Expected contexts %v, got %v", want, seen)
		}
	})

	t.Run("call site context in tail mode", func(t *testing.T) {
		clk := clock.NewFake(epoch)

		var seen []any
		wrapped := WrapEdge(func(ctx context.Context, _ string) {
			seen = append(seen, ctx.Value(ctxKey{}))
		}, WithThreshold(ms(100)), WithClock(clk), WithTail(true))

		wrapped(context.WithValue(context.Background(), ctxKey{}, "first"), "A")
		wrapped(context.WithValue(context.Background(), ctxKey{}, "last"), "B")
		clk.Advance(ms(100))

		if want := []any{"last"}; !reflect.DeepEqual(seen, want) {
			t.Errorf("Expected contexts %v, got %v", want, seen)
		}
	})

	t.Run("bound context", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		bound := context.WithValue(context.Background(), ctxKey{}, "bound")

		var seen []any
		wrapped := WrapEdge(func(ctx context.Context, _ string) {
			seen = append(seen, ctx.Value(ctxKey{}))
		}, WithThreshold(ms(100)), WithClock(clk), WithContext(bound))

		drive(clk, wrapped, []step{{0, "A"}, {ms(10), "B"}})

		if !reflect.DeepEqual(seen, []any{"bound", "bound"}) {
			t.Errorf("Expected the bound context twice, got %v", seen)
		}
	})
}

func TestWrapEdgeNilFunc(t *testing.T) {
	t.Run("leading mode panics at call time", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		wrapped := WrapEdge[string](nil, WithThreshold(ms(100)), WithClock(clk))

		defer func() {
			if rec := recover(); rec == nil {
				t.Error("Expected the call to panic")
			}
		}()
		wrapped(context.Background(), "A")
	})

	t.Run("tail mode reports through the panic handler", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		var recovered []any
		wrapped := WrapEdge[string](nil,
			WithThreshold(ms(100)),
			WithClock(clk),
			WithTail(true),
			WithPanicHandler(func(_ context.Context, rec any) {
				recovered = append(recovered, rec)
			}),
		)

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					t.Errorf("Expected the call to return normally, got panic %v", rec)
				}
			}()
			wrapped(context.Background(), "A")
		}()

		if len(recovered) != 0 {
			t.Fatalf("Expected nothing reported before the timer fires, got %v", recovered)
		}

		clk.Advance(ms(100))

		if len(recovered) != 1 {
			t.Fatalf("Expected 1 reported panic, got %v", recovered)
		}
		if _, ok := recovered[0].(runtime.Error); !ok {
			t.Errorf("Expected a runtime.Error, got %T: %v", recovered[0], recovered[0])
		}
	})
}
