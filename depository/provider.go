package depository

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ServiceProvider registers a group of related items.
//
// A provider whose Provides returns no keys is registered immediately by
// AddServiceProvider. Otherwise it is deferred: Register runs the first
// time one of the provided keys is made.
type ServiceProvider interface {
	Provides() []string
	Register(d *Depository) error
}

// BootableProvider is a provider with work to do once registration is done.
// Deferred providers are booted right after their lazy registration.
type BootableProvider interface {
	ServiceProvider
	Boot(d *Depository) error
}

// BaseProvider is embeddable and provides eager defaults.
type BaseProvider struct{}

// Provides returns nil, making the provider eager.
func (BaseProvider) Provides() []string { return nil }

type deferredProvider struct {
	provider ServiceProvider
	once     sync.Once
	err      error
}

// AddServiceProvider registers p now, or defers it until one of its
// provided keys is first made.
func (d *Depository) AddServiceProvider(p ServiceProvider) error {
	if p == nil {
		return ErrProviderNil
	}

	if d.closed.Load() {
		return ErrDepositoryClosed
	}

	provides := p.Provides()
	if len(provides) == 0 {
		if err := p.Register(d); err != nil {
			return fmt.Errorf("register %T: %w", p, err)
		}
		d.logger.WithField("provider", fmt.Sprintf("%T", p)).Debug("registered provider")
		return nil
	}

	dp := &deferredProvider{provider: p}

	d.mu.Lock()
	for _, key := range provides {
		d.deferred[key] = dp
	}
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"provider": fmt.Sprintf("%T", p),
		"provides": provides,
	}).Debug("deferred provider")

	return nil
}

// IsDeferred reports whether key will be registered by a deferred provider.
func (d *Depository) IsDeferred(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.deferred[key]
	return ok
}

// loadDeferred registers the provider deferred for key, once.
func (d *Depository) loadDeferred(key string) (bool, error) {
	d.mu.RLock()
	dp, ok := d.deferred[key]
	d.mu.RUnlock()

	if !ok {
		return false, nil
	}

	dp.once.Do(func() {
		p := dp.provider

		if err := p.Register(d); err != nil {
			dp.err = fmt.Errorf("register %T: %w", p, err)
			return
		}

		if b, ok := p.(BootableProvider); ok {
			if err := b.Boot(d); err != nil {
				dp.err = fmt.Errorf("boot %T: %w", p, err)
				return
			}
		}

		d.mu.Lock()
		for k, other := range d.deferred {
			if other == dp {
				delete(d.deferred, k)
			}
		}
		d.mu.Unlock()

		d.logger.WithField("provider", fmt.Sprintf("%T", p)).Debug("loaded deferred provider")
	})

	return true, dp.err
}
