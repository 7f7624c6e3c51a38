// Package app wires the configuration, logger, metrics, event emitter and
// depository into one Application and drives service providers through the
// register, boot and shutdown phases.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/titon/framework/config"
	"github.com/titon/framework/depository"
	"github.com/titon/framework/event"
	"github.com/titon/framework/internal/logging"
	"github.com/titon/framework/metrics"
)

// Lifecycle events emitted by the Application.
const (
	EventBooting            = "app.booting"
	EventBooted             = "app.booted"
	EventShutdown           = "app.shutdown"
	EventProviderRegistered = "app.provider.registered"
)

// Keys the core services are aliased under in the depository.
const (
	KeyApp     = "app"
	KeyConfig  = "config"
	KeyLogger  = "logger"
	KeyEvents  = "events"
	KeyMetrics = "metrics"
)

// Application is the top-level application container.
type Application struct {
	cfg       *config.Config
	logger    *logrus.Logger
	metrics   *metrics.Collector
	events    *event.Emitter
	container *depository.Depository

	mu        sync.Mutex
	providers []depository.ServiceProvider
	booted    bool
	shutdown  bool
}

// Option configures an Application.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends log output to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New builds an application from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	logger, err := logging.New(cfg.Log, o.logOutput)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: logger}

	eventOpts := []event.Option{event.WithLogger(logging.Component(logger, "events"))}
	depOpts := []depository.Option{
		depository.WithLogger(logging.Component(logger, "depository")),
		depository.WithMaxDepth(cfg.Container.MaxDepth),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		eventOpts = append(eventOpts, event.WithRecorder(a.metrics))
		depOpts = append(depOpts, depository.WithRecorder(a.metrics))
	}

	a.events = event.New(eventOpts...)
	a.container = depository.New(depOpts...)

	if err := a.registerCoreServices(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"name":    cfg.App.Name,
		"env":     cfg.App.Env,
		"metrics": cfg.Metrics.Enabled,
	}).Debug("application created")

	return a, nil
}

// registerCoreServices stores the core services as singletons under their
// type keys, aliased by name.
func (a *Application) registerCoreServices() error {
	core := []depository.Module{
		depository.ProvideSingleton(KeyApp, a),
		depository.ProvideSingleton(KeyConfig, a.cfg),
		depository.ProvideSingleton(KeyLogger, a.logger),
		depository.ProvideAlias(depository.KeyOf[logrus.FieldLogger](), depository.KeyOf[*logrus.Logger]()),
		depository.ProvideSingleton(KeyEvents, a.events),
	}
	if a.metrics != nil {
		core = append(core, depository.ProvideSingleton(KeyMetrics, a.metrics))
	}

	return a.container.Load(depository.NewModule("core", core...))
}

// Register adds a service provider. Eager providers are registered now and
// booted with the application, or immediately when it already booted.
// Deferred providers register on first use.
func (a *Application) Register(p depository.ServiceProvider) error {
	if p == nil {
		return depository.ErrProviderNil
	}

	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		return depository.ErrDepositoryClosed
	}

	if err := a.container.AddServiceProvider(p); err != nil {
		a.mu.Unlock()
		return err
	}

	eager := len(p.Provides()) == 0
	if eager {
		a.providers = append(a.providers, p)
	}
	booted := a.booted
	a.mu.Unlock()

	if eager && booted {
		if err := a.bootProvider(p); err != nil {
			return err
		}
	}

	_, err := a.events.Emit(context.Background(), EventProviderRegistered, p)
	return err
}

// Boot boots every eager provider, emitting EventBooting before and
// EventBooted after. Later calls do nothing.
func (a *Application) Boot(ctx context.Context) error {
	a.mu.Lock()
	if a.booted {
		a.mu.Unlock()
		return nil
	}
	if a.shutdown {
		a.mu.Unlock()
		return depository.ErrDepositoryClosed
	}
	a.booted = true
	providers := append([]depository.ServiceProvider(nil), a.providers...)
	a.mu.Unlock()

	if _, err := a.events.Emit(ctx, EventBooting, a); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	for _, p := range providers {
		if err := a.bootProvider(p); err != nil {
			return err
		}
	}

	if _, err := a.events.Emit(ctx, EventBooted, a); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	a.logger.WithField("providers", len(providers)).Info("application booted")
	return nil
}

func (a *Application) bootProvider(p depository.ServiceProvider) error {
	b, ok := p.(depository.BootableProvider)
	if !ok {
		return nil
	}

	if err := b.Boot(a.container); err != nil {
		return fmt.Errorf("boot %T: %w", p, err)
	}

	a.logger.WithField("provider", fmt.Sprintf("%T", p)).Debug("booted provider")
	return nil
}

// Shutdown emits EventShutdown and closes the depository. Observer errors
// do not prevent the depository from closing.
func (a *Application) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		return nil
	}
	a.shutdown = true
	a.mu.Unlock()

	_, emitErr := a.events.Emit(ctx, EventShutdown, a)
	closeErr := a.container.Close()

	a.logger.Info("application shut down")

	return errors.Join(emitErr, closeErr)
}

// Container returns the depository.
func (a *Application) Container() *depository.Depository { return a.container }

// Events returns the event emitter.
func (a *Application) Events() *event.Emitter { return a.events }

// Config returns the configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *Application) Logger() *logrus.Logger { return a.logger }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (a *Application) Metrics() *metrics.Collector { return a.metrics }

// Providers returns the eager providers in registration order.
func (a *Application) Providers() []depository.ServiceProvider {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]depository.ServiceProvider(nil), a.providers...)
}

// IsBooted reports whether Boot has run.
func (a *Application) IsBooted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.booted
}

// Environment returns the app.env setting.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
