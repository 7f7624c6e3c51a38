package event

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Priorities. AutoPriority resolves to DefaultPriority plus the number of
// observers already subscribed to the event.
const (
	AutoPriority    = 0
	DefaultPriority = 100
)

// Recorder receives dispatch measurements.
type Recorder interface {
	ObserveEmit(event string, observers int, stopped bool, duration time.Duration, err error)
	ObserveObserver(event string, async bool, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEmit(string, int, bool, time.Duration, error) {}
func (nopRecorder) ObserveObserver(string, bool, error)                 {}

// Option configures an Emitter.
type Option interface {
	apply(*emitterOptions)
}

type emitterOptions struct {
	logger   logrus.FieldLogger
	recorder Recorder
}

type optionFunc func(*emitterOptions)

func (f optionFunc) apply(o *emitterOptions) { f(o) }

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return optionFunc(func(o *emitterOptions) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithRecorder sets the recorder notified of every emit and observer call.
func WithRecorder(r Recorder) Option {
	return optionFunc(func(o *emitterOptions) {
		if r != nil {
			o.recorder = r
		}
	})
}

func defaultOptions() *emitterOptions {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &emitterOptions{
		logger:   logger,
		recorder: nopRecorder{},
	}
}

// ObserverOption configures an observer at subscribe time.
type ObserverOption func(*Observer)

// Priority sets the observer priority. Lower values run first.
func Priority(p int) ObserverOption {
	return func(o *Observer) { o.priority = p }
}

// Once makes the observer run for the first successful emit only.
func Once() ObserverOption {
	return func(o *Observer) { o.once = true }
}

// Async runs the observer in the concurrent stage of Emit.
func Async() ObserverOption {
	return WithMode(ModeAsync)
}

// WithMode sets the observer mode explicitly.
func WithMode(m Mode) ObserverOption {
	return func(o *Observer) { o.mode = m }
}

// Named sets the identifier recorded in the event call stack.
func Named(id string) ObserverOption {
	return func(o *Observer) { o.id = id }
}
