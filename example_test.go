package tailthrottle_test

import (
	"context"
	"fmt"
	"time"

	"github.com/blackorder/tailthrottle"
)

func ExampleWrap() {
	save := tailthrottle.Wrap(func(_ context.Context, doc string, pos tailthrottle.Position) {
		fmt.Println(pos, doc)
	}, tailthrottle.WithThreshold(20*time.Millisecond))

	ctx := context.Background()
	save(ctx, "draft 1")
	save(ctx, "draft 2")
	save(ctx, "draft 3")

	time.Sleep(100 * time.Millisecond)
	// Output:
	// head draft 1
	// tail draft 3
}

func ExampleWrapEdge() {
	resize := tailthrottle.WrapEdge(func(_ context.Context, width int) {
		fmt.Println("resize", width)
	}, tailthrottle.WithThreshold(20*time.Millisecond), tailthrottle.WithTail(true))

	ctx := context.Background()
	for _, w := range []int{640, 800, 1024} {
		resize(ctx, w)
	}

	time.Sleep(100 * time.Millisecond)
	// Output: resize 1024
}

func ExampleWithForceTail() {
	ping := tailthrottle.Wrap(func(_ context.Context, host string, pos tailthrottle.Position) {
		fmt.Println(pos, host)
	}, tailthrottle.WithThreshold(20*time.Millisecond), tailthrottle.WithForceTail(true))

	ping(context.Background(), "db-1")

	time.Sleep(100 * time.Millisecond)
	// Output:
	// head db-1
	// tail db-1
}
