// Package event provides a priority-ordered event emitter with stoppable,
// stateful events.
//
// # Basic Usage
//
//	em := event.New()
//
//	em.Subscribe("user.login", func(ctx context.Context, e *event.Event, args ...any) (any, error) {
//	    e.Set("user", args[0])
//	    return nil, nil
//	}, event.Priority(10))
//
//	ev, err := em.Emit(ctx, "user.login", user)
//
// # Ordering and Stopping
//
// Observers run by ascending priority; equal priorities keep subscription
// order. A priority of AutoPriority places the observer after those already
// subscribed. An observer returning nil or true lets dispatch continue. Any
// other value stops the event and is stored as its state.
//
// # Async Observers
//
// Observers subscribed with Async run after the sync observers, all at
// once, and Emit waits for every one of them. They are skipped entirely
// when a sync observer stopped the event. Their results are applied in
// dispatch order once all have finished.
//
// # Listeners
//
// A Listener declares which of its methods observe which events:
//
//	func (l *Audit) SubscribedEvents() map[string][]event.Subscription {
//	    return map[string][]event.Subscription{
//	        "user.login": event.Handle("OnLogin"),
//	    }
//	}
//
// # Wildcards
//
// EmitMany accepts space separated names and "*" patterns matched against
// the subscribed events:
//
//	em.EmitMany(ctx, []string{"user.* app.boot"})
package event
