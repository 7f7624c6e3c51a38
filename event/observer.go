package event

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync/atomic"
	"unsafe"
)

// Callback handles an event. Returning nil or true lets dispatch continue;
// any other value stops the event and becomes its state. A non-nil error
// aborts the emit.
type Callback func(ctx context.Context, e *Event, args ...any) (any, error)

// Observer is a callback subscribed to one event.
type Observer struct {
	callback Callback
	ref      callbackRef
	id       string
	priority int
	once     bool
	mode     Mode
	executed atomic.Bool

	listener Listener // set for observers added by Listen
}

func newObserver(callback Callback, opts []ObserverOption) *Observer {
	o := &Observer{
		callback: callback,
		ref:      refOf(callback),
		priority: AutoPriority,
		mode:     ModeSync,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.id == "" {
		o.id = funcName(callback)
	}

	return o
}

// ID returns the identifier recorded in event call stacks.
func (o *Observer) ID() string { return o.id }

// Priority returns the resolved priority.
func (o *Observer) Priority() int { return o.priority }

// IsOnce reports whether the observer runs only once.
func (o *Observer) IsOnce() bool { return o.once }

// HasExecuted reports whether the observer completed at least once.
func (o *Observer) HasExecuted() bool { return o.executed.Load() }

// Mode returns the observer mode.
func (o *Observer) Mode() Mode { return o.mode }

// IsAsync reports whether the observer runs in the async stage.
func (o *Observer) IsAsync() bool { return o.mode == ModeAsync }

// Callback returns the wrapped callback.
func (o *Observer) Callback() Callback { return o.callback }

func (o *Observer) String() string { return o.id }

// claim reserves a run. Once observers can be claimed a single time until
// released.
func (o *Observer) claim() bool {
	if !o.once {
		return true
	}
	return o.executed.CompareAndSwap(false, true)
}

func (o *Observer) release() {
	if o.once {
		o.executed.Store(false)
	}
}

// callbackRef identifies a callback for Unsubscribe. Closures are told apart
// by their function value. A method value on a pointer receiver gets a new
// function value on every evaluation, so it is identified by its wrapper
// code and receiver instead.
type callbackRef struct {
	fn       uintptr
	code     uintptr
	receiver uintptr
}

func refOf(fn Callback) callbackRef {
	if fn == nil {
		return callbackRef{}
	}

	fv := *(*unsafe.Pointer)(unsafe.Pointer(&fn))
	code := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(code); f != nil && isPointerMethodValue(f.Name()) {
		// The closure holds the wrapper code followed by the receiver pointer.
		receiver := *(*uintptr)(unsafe.Add(fv, unsafe.Sizeof(uintptr(0))))
		return callbackRef{code: code, receiver: receiver}
	}

	return callbackRef{fn: uintptr(fv)}
}

// isPointerMethodValue reports whether name is the wrapper the compiler
// generates for a method value like h.Handle with h a pointer.
func isPointerMethodValue(name string) bool {
	return strings.HasSuffix(name, "-fm") && strings.Contains(name, ".(*")
}

// funcName returns the short name of fn's code, like "app.handleBoot.func1".
func funcName(fn Callback) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "<unknown>"
	}

	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
