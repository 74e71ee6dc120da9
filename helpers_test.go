package tailthrottle

import (
	"context"
	"sync"
	"time"

	"github.com/blackorder/tailthrottle/clock"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type call struct {
	arg string
	pos Position
	at  time.Duration
}

// recorder collects invocations, stamping each with the fake clock's offset
// from epoch.
type recorder struct {
	clk *clock.Fake

	mu    sync.Mutex
	calls []call
}

func newRecorder(clk *clock.Fake) *recorder {
	return &recorder{clk: clk}
}

func (r *recorder) tagged(_ context.Context, arg string, pos Position) {
	at := r.clk.Now().Sub(epoch)

	r.mu.Lock()
	r.calls = append(r.calls, call{arg: arg, pos: pos, at: at})
	r.mu.Unlock()
}

func (r *recorder) edge(_ context.Context, arg string) {
	at := r.clk.Now().Sub(epoch)

	r.mu.Lock()
	r.calls = append(r.calls, call{arg: arg, at: at})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]call, len(r.calls))
	copy(out, r.calls)

	return out
}

type step struct {
	at  time.Duration
	arg string
}

// drive issues each step at its offset from epoch, then lets every pending
// timer run.
func drive(clk *clock.Fake, wrapped func(context.Context, string), steps []step) {
	ctx := context.Background()
	for _, s := range steps {
		clk.Advance(s.at - clk.Now().Sub(epoch))
		wrapped(ctx, s.arg)
	}
	clk.Advance(time.Second)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
