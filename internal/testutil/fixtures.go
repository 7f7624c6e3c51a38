package testutil

import (
	"context"
	"sync"

	"github.com/titon/framework/depository"
	"github.com/titon/framework/event"
)

// BasicModule registers the logger, database and service fixtures.
var BasicModule = depository.NewModule("testutil.basic",
	depository.ProvideSingleton("", NewTestLogger),
	depository.ProvideSingleton("", NewTestDatabase),
	depository.Provide("", NewTestService),
)

// CompleteModule adds the service with dependencies to BasicModule.
var CompleteModule = depository.NewModule("testutil.complete",
	BasicModule,
	depository.Provide("", NewTestServiceWithDeps),
)

// CircularModule registers two constructors that need each other.
var CircularModule = depository.NewModule("testutil.circular",
	depository.Provide("", NewCircularServiceA),
	depository.Provide("", NewCircularServiceB),
)

// Call is one recorded observer invocation.
type Call struct {
	Observer string
	Event    string
	Args     []any
}

// CallRecorder records observer invocations from any goroutine.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

// Callback returns an observer callback recording name and returning result.
func (r *CallRecorder) Callback(name string, result any) event.Callback {
	return func(_ context.Context, e *event.Event, args ...any) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.calls = append(r.calls, Call{Observer: name, Event: e.Key(), Args: args})
		return result, nil
	}
}

// Failing returns a callback that records name and fails with err.
func (r *CallRecorder) Failing(name string, err error) event.Callback {
	record := r.Callback(name, nil)
	return func(ctx context.Context, e *event.Event, args ...any) (any, error) {
		_, _ = record(ctx, e, args...)
		return nil, err
	}
}

// Calls returns a copy of the recorded calls.
func (r *CallRecorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// Observers returns the observer names in invocation order.
func (r *CallRecorder) Observers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Observer
	}
	return names
}

// Count returns how many times name was invoked.
func (r *CallRecorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		if c.Observer == name {
			n++
		}
	}
	return n
}

// Reset forgets every recorded call.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = nil
}
