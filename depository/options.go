package depository

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds nested resolution when no WithMaxDepth option is given.
const DefaultMaxDepth = 100

// Recorder receives registration and resolution measurements.
// metrics.Collector implements it. Keys are not reported, so a recorder's
// label set stays bounded however many keys are made.
type Recorder interface {
	ObserveRegistration(kind string)
	ObserveResolution(duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRegistration(string)             {}
func (nopRecorder) ObserveResolution(time.Duration, error) {}

// Option configures a Depository.
type Option interface {
	apply(*options)
}

type options struct {
	logger   logrus.FieldLogger
	recorder Recorder
	maxDepth int
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger logrus.FieldLogger) Option {
	return optionFunc(func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	})
}

// WithRecorder sets the recorder notified of registrations and resolutions.
func WithRecorder(recorder Recorder) Option {
	return optionFunc(func(opts *options) {
		if recorder != nil {
			opts.recorder = recorder
		}
	})
}

// WithMaxDepth bounds how deeply makes may nest. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return optionFunc(func(opts *options) {
		if depth > 0 {
			opts.maxDepth = depth
		}
	})
}

func defaultOptions() *options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &options{
		logger:   logger,
		recorder: nopRecorder{},
		maxDepth: DefaultMaxDepth,
	}
}
