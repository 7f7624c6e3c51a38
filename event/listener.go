package event

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// Listener subscribes several of its methods at once. Each method named in
// SubscribedEvents must have the Callback signature:
//
//	func (l *AuditListener) SubscribedEvents() map[string][]event.Subscription {
//	    return map[string][]event.Subscription{
//	        "user.login":  event.Handle("OnLogin"),
//	        "user.logout": {{Method: "OnLogout", Priority: 50, Async: true}},
//	    }
//	}
//
//	func (l *AuditListener) OnLogin(ctx context.Context, e *event.Event, args ...any) (any, error)
type Listener interface {
	SubscribedEvents() map[string][]Subscription
}

// Subscription binds a listener method to an event.
type Subscription struct {
	Method   string
	Priority int
	Once     bool
	Async    bool
}

// Handle is shorthand for a single subscription with default settings.
func Handle(method string) []Subscription {
	return []Subscription{{Method: method}}
}

var callbackFuncType = reflect.TypeOf((func(context.Context, *Event, ...any) (any, error))(nil))

type binding struct {
	event    string
	callback Callback
	opts     []ObserverOption
}

// bindListener validates every subscription of l before anything is
// subscribed, so an invalid listener leaves the emitter untouched.
func bindListener(l Listener) ([]binding, error) {
	name := fmt.Sprintf("%T", l)
	v := reflect.ValueOf(l)

	events := l.SubscribedEvents()
	names := make([]string, 0, len(events))
	for ev := range events {
		names = append(names, ev)
	}
	sort.Strings(names)

	var bindings []binding
	for _, ev := range names {
		if ev == "" {
			return nil, InvalidListenerError{Listener: name, Event: ev, Reason: "event name is empty"}
		}

		for _, sub := range events[ev] {
			if sub.Method == "" {
				return nil, InvalidListenerError{Listener: name, Event: ev, Reason: "subscription has no method"}
			}

			m := v.MethodByName(sub.Method)
			if !m.IsValid() {
				return nil, InvalidListenerError{Listener: name, Event: ev, Method: sub.Method, Reason: "does not exist"}
			}
			if m.Type() != callbackFuncType {
				return nil, InvalidListenerError{
					Listener: name,
					Event:    ev,
					Method:   sub.Method,
					Reason:   fmt.Sprintf("has signature %s, want %s", m.Type(), callbackFuncType),
				}
			}

			opts := []ObserverOption{
				Priority(sub.Priority),
				Named(name + "::" + sub.Method),
			}
			if sub.Once {
				opts = append(opts, Once())
			}
			if sub.Async {
				opts = append(opts, Async())
			}

			bindings = append(bindings, binding{
				event:    ev,
				callback: Callback(m.Interface().(func(context.Context, *Event, ...any) (any, error))),
				opts:     opts,
			})
		}
	}

	return bindings, nil
}

// sameListener compares listeners without panicking on uncomparable values.
func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return false
	}
	if !reflect.TypeOf(a).Comparable() || reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return a == b
}
