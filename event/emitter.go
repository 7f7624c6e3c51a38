package event

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Emitter dispatches named events to subscribed observers.
//
// An Emitter is safe for concurrent use.
type Emitter struct {
	mu        sync.RWMutex
	observers map[string][]*Observer

	logger   logrus.FieldLogger
	recorder Recorder
}

// New creates an emitter with no observers.
func New(opts ...Option) *Emitter {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}

	return &Emitter{
		observers: make(map[string][]*Observer),
		logger:    o.logger,
		recorder:  o.recorder,
	}
}

// Subscribe adds callback as an observer of event.
func (em *Emitter) Subscribe(event string, callback Callback, opts ...ObserverOption) (*Observer, error) {
	if event == "" {
		return nil, ErrEventEmpty
	}
	if callback == nil {
		return nil, ErrCallbackNil
	}

	o := newObserver(callback, opts)
	if !o.mode.IsValid() {
		return nil, ModeError{Value: o.mode.String()}
	}

	em.mu.Lock()
	if o.priority == AutoPriority {
		o.priority = DefaultPriority + len(em.observers[event])
	}
	em.observers[event] = append(em.observers[event], o)
	em.mu.Unlock()

	em.logger.WithFields(logrus.Fields{
		"event":    event,
		"observer": o.id,
		"priority": o.priority,
		"mode":     o.mode.String(),
	}).Debug("subscribed observer")

	return o, nil
}

// Unsubscribe removes every observer of event wrapping the same callback:
// the same function value, or a method value of the same method on the same
// pointer receiver. Remaining observers keep their order.
//
// Closures built anew for every call and method values on non-pointer
// receivers never compare equal; remove those with UnsubscribeObserver.
func (em *Emitter) Unsubscribe(event string, callback Callback) *Emitter {
	ref := refOf(callback)
	if ref == (callbackRef{}) {
		return em
	}

	em.remove(event, func(o *Observer) bool { return o.ref == ref })
	return em
}

// UnsubscribeObserver removes the observer returned by Subscribe.
func (em *Emitter) UnsubscribeObserver(event string, o *Observer) *Emitter {
	if o == nil {
		return em
	}

	em.remove(event, func(other *Observer) bool { return other == o })
	return em
}

// Listen subscribes every method declared by l.
func (em *Emitter) Listen(l Listener) error {
	if l == nil {
		return ErrListenerNil
	}

	bindings, err := bindListener(l)
	if err != nil {
		return err
	}

	for _, b := range bindings {
		o, err := em.Subscribe(b.event, b.callback, b.opts...)
		if err != nil {
			return err
		}
		o.listener = l
	}

	return nil
}

// Unlisten removes every observer added by Listen(l).
func (em *Emitter) Unlisten(l Listener) *Emitter {
	if l == nil {
		return em
	}

	for ev := range l.SubscribedEvents() {
		em.remove(ev, func(o *Observer) bool { return sameListener(o.listener, l) })
	}
	return em
}

func (em *Emitter) remove(event string, match func(*Observer) bool) {
	em.mu.Lock()
	defer em.mu.Unlock()

	current, ok := em.observers[event]
	if !ok {
		return
	}

	kept := make([]*Observer, 0, len(current))
	for _, o := range current {
		if !match(o) {
			kept = append(kept, o)
		}
	}

	if len(kept) == 0 {
		delete(em.observers, event)
		return
	}
	em.observers[event] = kept
}

// Flush removes the observers of event, or of every event when event is "".
func (em *Emitter) Flush(event string) *Emitter {
	em.mu.Lock()
	if event == "" {
		em.observers = make(map[string][]*Observer)
	} else {
		delete(em.observers, event)
	}
	em.mu.Unlock()

	return em
}

// Observers returns the observers of event in subscription order.
func (em *Emitter) Observers(event string) []*Observer {
	em.mu.RLock()
	defer em.mu.RUnlock()

	return append([]*Observer(nil), em.observers[event]...)
}

// SortedObservers returns the observers of event by ascending priority.
// Observers with equal priority keep subscription order.
func (em *Emitter) SortedObservers(event string) []*Observer {
	observers := em.Observers(event)
	sort.SliceStable(observers, func(i, j int) bool {
		return observers[i].priority < observers[j].priority
	})
	return observers
}

// CallStack returns the identifiers of the observers of event in dispatch order.
func (em *Emitter) CallStack(event string) []string {
	return callStack(em.SortedObservers(event))
}

// HasObservers reports whether event has any observers.
func (em *Emitter) HasObservers(event string) bool {
	em.mu.RLock()
	defer em.mu.RUnlock()

	return len(em.observers[event]) > 0
}

// EventNames returns every event with observers, sorted.
func (em *Emitter) EventNames() []string {
	em.mu.RLock()
	defer em.mu.RUnlock()

	names := make([]string, 0, len(em.observers))
	for name := range em.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func callStack(observers []*Observer) []string {
	ids := make([]string, len(observers))
	for i, o := range observers {
		ids[i] = o.id
	}
	return ids
}

// Emit notifies the observers of event. Sync observers run in priority
// order until one stops the event. Unless the event is stopped by then,
// async observers are then started together and Emit waits for all of them.
//
// The returned event is non-nil even when an observer fails.
func (em *Emitter) Emit(ctx context.Context, event string, args ...any) (*Event, error) {
	start := time.Now()

	observers := em.SortedObservers(event)
	ev := NewEvent(event, callStack(observers))

	var syncObservers, asyncObservers []*Observer
	for _, o := range observers {
		if o.IsAsync() {
			asyncObservers = append(asyncObservers, o)
		} else {
			syncObservers = append(syncObservers, o)
		}
	}

	err := em.notify(ctx, ev, syncObservers, args)
	if err == nil && !ev.IsStopped() && len(asyncObservers) > 0 {
		err = em.notifyAsync(ctx, ev, asyncObservers, args)
	}

	duration := time.Since(start)
	em.recorder.ObserveEmit(event, len(observers), ev.IsStopped(), duration, err)

	log := em.logger.WithFields(logrus.Fields{
		"event":     event,
		"id":        ev.ID(),
		"observers": len(observers),
		"stopped":   ev.IsStopped(),
		"duration":  duration,
	})
	if err != nil {
		log.WithError(err).Debug("emit failed")
	} else {
		log.Debug("emitted event")
	}

	return ev, err
}

// EmitMany emits each named event independently. Entries may hold several
// names separated by whitespace, and "*" matches one or more word
// characters or dashes of a subscribed event name.
func (em *Emitter) EmitMany(ctx context.Context, events []string, args ...any) (map[string]*Event, error) {
	names, err := em.expand(events)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*Event, len(names))
	for _, name := range names {
		ev, err := em.Emit(ctx, name, args...)
		results[name] = ev
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

func (em *Emitter) expand(events []string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, entry := range events {
		for _, name := range strings.Fields(entry) {
			if !strings.Contains(name, "*") {
				add(name)
				continue
			}

			pattern := `(?i)^` + strings.ReplaceAll(regexp.QuoteMeta(name), `\*`, `[-\w]+`) + `$`
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("event pattern %q: %w", name, err)
			}

			for _, registered := range em.EventNames() {
				if re.MatchString(registered) {
					add(registered)
				}
			}
		}
	}

	return names, nil
}

func (em *Emitter) notify(ctx context.Context, ev *Event, observers []*Observer, args []any) error {
	for _, o := range observers {
		if err := ctx.Err(); err != nil {
			return err
		}

		cont, err := em.executeObserver(ctx, ev, o, args)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// executeObserver runs o and reports whether dispatch should continue.
// A stopped event halts dispatch; a once observer that already ran is
// skipped without halting it.
func (em *Emitter) executeObserver(ctx context.Context, ev *Event, o *Observer, args []any) (bool, error) {
	if ev.IsStopped() {
		return false, nil
	}

	if !o.claim() {
		return true, nil
	}

	result, err := em.call(ctx, ev, o, args)
	if err != nil {
		return false, err
	}

	return handleExecution(ev, result), nil
}

type asyncResult struct {
	value any
	ran   bool
}

// notifyAsync starts every observer at once and waits for all of them. The
// first error cancels the shared context. Results are applied afterwards in
// dispatch order, so the first stopping observer defines the event state.
func (em *Emitter) notifyAsync(ctx context.Context, ev *Event, observers []*Observer, args []any) error {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]asyncResult, len(observers))

	for i, o := range observers {
		if !o.claim() {
			continue
		}

		g.Go(func() error {
			value, err := em.call(gctx, ev, o, args)
			if err != nil {
				return err
			}
			results[i] = asyncResult{value: value, ran: true}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if !r.ran {
			continue
		}
		if !handleExecution(ev, r.value) {
			break
		}
	}

	return nil
}

// call invokes the callback, converting errors and panics. A failed once
// observer may run again on a later emit.
func (em *Emitter) call(ctx context.Context, ev *Event, o *Observer, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = ObserverPanicError{
				Event:    ev.Key(),
				Observer: o.id,
				Panic:    r,
				Stack:    debug.Stack(),
			}
		}

		if err != nil {
			o.release()
			em.logger.WithError(err).WithFields(logrus.Fields{
				"event":    ev.Key(),
				"observer": o.id,
			}).Debug("observer failed")
		} else {
			o.executed.Store(true)
		}

		em.recorder.ObserveObserver(ev.Key(), o.IsAsync(), err)
	}()

	result, err = o.callback(ctx, ev, args...)
	if err != nil {
		return nil, ObserverError{Event: ev.Key(), Observer: o.id, Cause: err}
	}

	return result, nil
}

// handleExecution applies an observer result: nil or true advances the
// event, anything else stops it with the result as state.
func handleExecution(ev *Event, result any) bool {
	if result == nil || result == true {
		ev.Next()
		return true
	}

	ev.halt(result)
	return false
}
