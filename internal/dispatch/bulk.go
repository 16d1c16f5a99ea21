package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"nutripush/internal/producer"
	logx "nutripush/pkg/logx"
)

type bulkResult struct {
	userID  string
	outcome Outcome
	err     error
}

// SendToMany dispatches the same payload to every user, one Send per user,
// across a bounded worker pool.
//
// Users are isolated failure domains: a panic or error for one user is
// reported in Errors and never aborts the others. When a bulk deadline is
// configured, users whose dispatch did not finish in time are counted as
// failed without rolling back completed ones.
func (e *Engine) SendToMany(ctx context.Context, userIDs []string, payload producer.Payload) BulkOutcome {
	out := BulkOutcome{Total: len(userIDs)}
	if len(userIDs) == 0 {
		return out
	}

	e.mu.Lock()
	workers := e.cfg.Workers
	timeout := e.cfg.BulkTimeout
	e.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if workers > len(userIDs) {
		workers = len(userIDs)
	}

	jobs := make(chan string)
	results := make(chan bulkResult, len(userIDs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for userID := range jobs {
				if ctx.Err() != nil {
					// Deadline hit; the remaining users count as failed/unknown.
					results <- bulkResult{userID: userID, err: fmt.Errorf("bulk send: %w", ctx.Err())}
					continue
				}
				results <- e.sendGuarded(ctx, userID, payload)
			}
		}()
	}

	for _, userID := range userIDs {
		jobs <- userID
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			out.Failed++
			out.Errors = append(out.Errors, UserError{UserID: res.userID, Err: res.err.Error()})
			continue
		}
		out.Sent += res.outcome.Sent
		out.Failed += res.outcome.Failed
	}
	return out
}

// sendGuarded isolates one user's dispatch, converting panics into errors.
func (e *Engine) sendGuarded(ctx context.Context, userID string, payload producer.Payload) (res bulkResult) {
	res.userID = userID
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("dispatch panicked", logx.String("user", userID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()
	res.outcome = e.Send(ctx, userID, payload)
	return res
}
