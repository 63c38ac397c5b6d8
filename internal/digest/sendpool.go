package digest

import (
	"context"
	"fmt"
	"sync"

	"citybrief/internal/core"
)

// Result is one recipient's outcome for a run.
type Result struct {
	UserID    string
	Sent      bool
	Reason    SkipReason // set when skipped
	Delivered []core.ContentItem
	Err       error
}

// Task builds and sends one recipient's digest.
type Task struct {
	UserID string
	Do     func(ctx context.Context) Result
}

// Pool runs per-recipient tasks with bounded fan-out. Each task's outcome
// comes back on its own completion record; one recipient failing or panicking
// never cancels sibling work.
type Pool struct {
	limit int
}

// NewPool creates a pool with the given concurrency limit.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Run executes every task and returns the results in completion order.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	sem := make(chan struct{}, p.limit)
	results := make(chan Result, len(tasks))
	var wg sync.WaitGroup

	for _, task := range tasks {
		if ctx.Err() != nil {
			results <- Result{UserID: task.UserID, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		sem <- struct{}{} // Acquire semaphore
		go func(task Task) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore
			defer func() {
				// One recipient's panic must not take down the batch.
				if r := recover(); r != nil {
					results <- Result{UserID: task.UserID, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results <- task.Do(ctx)
		}(task)
	}

	wg.Wait()
	close(results)

	collected := make([]Result, 0, len(tasks))
	for result := range results {
		collected = append(collected, result)
	}
	return collected
}
