package event

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCallbackNil = errors.New("callback cannot be nil")
	ErrEventEmpty  = errors.New("event name cannot be empty")
	ErrListenerNil = errors.New("listener cannot be nil")
)

var (
	_ error = ObserverError{}
	_ error = ObserverPanicError{}
	_ error = InvalidListenerError{}
	_ error = ModeError{}
)

// ObserverError wraps an error returned by an observer callback.
// Dispatch stops at the first failing observer.
type ObserverError struct {
	Event    string
	Observer string
	Cause    error
}

func (e ObserverError) Error() string {
	return fmt.Sprintf("observer %s failed for event %s: %v", e.Observer, e.Event, e.Cause)
}

func (e ObserverError) Unwrap() error {
	return e.Cause
}

// ObserverPanicError indicates an observer callback panicked.
type ObserverPanicError struct {
	Event    string
	Observer string
	Panic    any
	Stack    []byte
}

func (e ObserverPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("observer %s panicked during event %s: %v\n", e.Observer, e.Event, e.Panic))

	if len(e.Stack) > 0 {
		b.WriteString("\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// InvalidListenerError indicates a listener declared a subscription that
// cannot be bound to one of its methods.
type InvalidListenerError struct {
	Listener string
	Event    string
	Method   string
	Reason   string
}

func (e InvalidListenerError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("invalid listener %s for event %q: %s", e.Listener, e.Event, e.Reason)
	}
	return fmt.Sprintf("invalid listener %s: method %s for event %q %s", e.Listener, e.Method, e.Event, e.Reason)
}

// ModeError indicates an unknown observer mode.
type ModeError struct {
	Value string
}

func (e ModeError) Error() string {
	return fmt.Sprintf("invalid observer mode: %q", e.Value)
}

// IsObserverError reports whether err came from an observer, by error
// return or panic.
func IsObserverError(err error) bool {
	var oe ObserverError
	var pe ObserverPanicError
	return errors.As(err, &oe) || errors.As(err, &pe)
}
