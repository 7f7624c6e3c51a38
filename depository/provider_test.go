package depository_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titon/framework/depository"
)

type storageProvider struct {
	depository.BaseProvider
	registered int
	booted     int
}

func (p *storageProvider) Register(d *depository.Depository) error {
	p.registered++
	_, err := d.Singleton("", NewDatabase)
	return err
}

type cacheProvider struct {
	mu         sync.Mutex
	registered int
	booted     int
	failBoot   bool
}

func (p *cacheProvider) Provides() []string {
	return []string{"cache", "cache.store"}
}

func (p *cacheProvider) Register(d *depository.Depository) error {
	p.mu.Lock()
	p.registered++
	p.mu.Unlock()

	if err := d.Instance("cache", map[string]string{"driver": "memory"}); err != nil {
		return err
	}
	return d.Alias("cache.store", "cache")
}

func (p *cacheProvider) Boot(d *depository.Depository) error {
	p.booted++
	if p.failBoot {
		return errors.New("cache unavailable")
	}
	return nil
}

func TestAddServiceProvider(t *testing.T) {
	t.Run("eager provider registers immediately", func(t *testing.T) {
		d := depository.New()
		p := &storageProvider{}

		require.NoError(t, d.AddServiceProvider(p))
		assert.Equal(t, 1, p.registered)
		assert.True(t, d.IsRegistered(depository.KeyOf[*Database]()))
	})

	t.Run("deferred provider registers on first make", func(t *testing.T) {
		d := depository.New()
		p := &cacheProvider{}

		require.NoError(t, d.AddServiceProvider(p))
		assert.Equal(t, 0, p.registered)
		assert.True(t, d.IsDeferred("cache"))
		assert.True(t, d.IsDeferred("cache.store"))
		assert.False(t, d.IsRegistered("cache"))

		inst, err := d.Make("cache.store")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"driver": "memory"}, inst)

		assert.Equal(t, 1, p.registered)
		assert.Equal(t, 1, p.booted)
		assert.False(t, d.IsDeferred("cache"))

		_, err = d.Make("cache")
		require.NoError(t, err)
		assert.Equal(t, 1, p.registered)
	})

	t.Run("deferred provider loads once under contention", func(t *testing.T) {
		d := depository.New()
		p := &cacheProvider{}
		require.NoError(t, d.AddServiceProvider(p))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.Make("cache")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, p.registered)
	})

	t.Run("deferred keys are listed as bindings", func(t *testing.T) {
		d := depository.New()
		require.NoError(t, d.AddServiceProvider(&cacheProvider{}))

		var deferred []string
		for _, b := range d.Bindings() {
			if b.Kind == "deferred" {
				deferred = append(deferred, b.Key)
			}
		}
		assert.Equal(t, []string{"cache", "cache.store"}, deferred)
	})

	t.Run("boot failure is reported", func(t *testing.T) {
		d := depository.New()
		require.NoError(t, d.AddServiceProvider(&cacheProvider{failBoot: true}))

		_, err := d.Make("cache")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache unavailable")
	})

	t.Run("nil provider", func(t *testing.T) {
		d := depository.New()
		assert.ErrorIs(t, d.AddServiceProvider(nil), depository.ErrProviderNil)
	})
}

func TestModules(t *testing.T) {
	t.Run("load registers everything", func(t *testing.T) {
		d := depository.New()

		storage := depository.NewModule("storage",
			depository.ProvideSingleton("", NewDatabase),
			depository.ProvideSingleton("", NewLogger),
			depository.Provide("", NewUserRepository),
			depository.ProvideAlias("db", depository.KeyOf[*Database]()),
		)
		settings := depository.NewModule("settings",
			depository.ProvideInstance("app.name", "titon"),
			depository.ProvideProviders(&cacheProvider{}),
		)

		require.NoError(t, d.Load(storage, settings, nil))

		repo, err := depository.Resolve[*UserRepository](d, "")
		require.NoError(t, err)
		db, err := depository.Resolve[*Database](d, "db")
		require.NoError(t, err)
		assert.Same(t, db, repo.DB)

		assert.True(t, d.IsRegistered("app.name"))
		assert.True(t, d.IsDeferred("cache"))
	})

	t.Run("errors name the module", func(t *testing.T) {
		d := depository.New()

		broken := depository.NewModule("broken",
			depository.ProvideInstance("dup", 1),
			depository.ProvideInstance("dup", 2),
		)

		err := d.Load(broken)
		var moduleErr depository.ModuleError
		require.True(t, errors.As(err, &moduleErr))
		assert.Equal(t, "broken", moduleErr.Module)
		assert.True(t, depository.IsAlreadyRegistered(err))
		assert.Contains(t, err.Error(), `module "broken"`)
	})

	t.Run("nested modules", func(t *testing.T) {
		d := depository.New()

		inner := depository.NewModule("inner", depository.Provide("", NewDatabase))
		outer := depository.NewModule("outer", inner, depository.ProvideAlias("db", depository.KeyOf[*Database]()))

		require.NoError(t, d.Load(outer))
		assert.True(t, d.IsRegistered("db"))
	})
}
