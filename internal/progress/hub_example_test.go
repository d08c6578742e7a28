package progress

import (
	"context"
	"fmt"
	"time"
)

// ExampleHub_Emit totals downloaded bytes from page events.
func ExampleHub_Emit() {
	var bytes int64
	sink := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			bytes += evt.Bytes
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		TaskID:  "example",
		TS:      time.Unix(0, 0),
		Stage:   StagePageDone,
		URL:     "https://en.wikipedia.org/wiki/Gopher",
		Edition: "en",
		Bytes:   512,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes downloaded: %d\n", bytes)
	// Output:
	// bytes downloaded: 512
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
