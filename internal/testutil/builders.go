package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/titon/framework/depository"
	"github.com/titon/framework/event"
	"github.com/titon/framework/internal/logging"
)

// DepositoryBuilder provides a fluent interface for building test depositories
type DepositoryBuilder struct {
	t *testing.T
	d *depository.Depository
}

// NewDepositoryBuilder creates a builder around a depository that logs
// nowhere and is closed when the test ends.
func NewDepositoryBuilder(t *testing.T, opts ...depository.Option) *DepositoryBuilder {
	t.Helper()

	opts = append([]depository.Option{depository.WithLogger(logging.Discard())}, opts...)
	d := depository.New(opts...)
	t.Cleanup(func() {
		if !d.IsClosed() {
			require.NoError(t, d.Close())
		}
	})

	return &DepositoryBuilder{t: t, d: d}
}

// WithTransient registers concrete under key
func (b *DepositoryBuilder) WithTransient(key string, concrete any) *DepositoryBuilder {
	b.t.Helper()
	_, err := b.d.Register(key, concrete)
	require.NoError(b.t, err, "register %q", key)
	return b
}

// WithSingleton registers concrete as a singleton under key
func (b *DepositoryBuilder) WithSingleton(key string, concrete any) *DepositoryBuilder {
	b.t.Helper()
	_, err := b.d.Singleton(key, concrete)
	require.NoError(b.t, err, "singleton %q", key)
	return b
}

// WithAlias adds an alias
func (b *DepositoryBuilder) WithAlias(alias, key string) *DepositoryBuilder {
	b.t.Helper()
	require.NoError(b.t, b.d.Alias(alias, key))
	return b
}

// WithModule loads modules
func (b *DepositoryBuilder) WithModule(modules ...depository.Module) *DepositoryBuilder {
	b.t.Helper()
	require.NoError(b.t, b.d.Load(modules...))
	return b
}

// WithProvider adds service providers
func (b *DepositoryBuilder) WithProvider(providers ...depository.ServiceProvider) *DepositoryBuilder {
	b.t.Helper()
	for _, p := range providers {
		require.NoError(b.t, b.d.AddServiceProvider(p))
	}
	return b
}

// Build returns the depository
func (b *DepositoryBuilder) Build() *depository.Depository {
	return b.d
}

// NewEmitter returns an emitter that logs nowhere.
func NewEmitter(opts ...event.Option) *event.Emitter {
	opts = append([]event.Option{event.WithLogger(logging.Discard())}, opts...)
	return event.New(opts...)
}
