package session

import (
	"context"
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

type outcome struct {
	name string
	err  error
}

// race runs tasks concurrently and returns the outcome of the first one to
// finish. The others are cancelled and left to exit on their own; their
// results land in the buffered channel and are dropped.
func race(ctx context.Context, tasks ...task) outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, len(tasks))
	for _, t := range tasks {
		go func(t task) {
			done <- outcome{name: t.name, err: t.run(ctx)}
		}(t)
	}
	return <-done
}
