package depository

// Module groups registrations so they can be applied together.
type Module func(d *Depository) error

// NewModule combines modules under a name used in error messages.
//
//	var StorageModule = depository.NewModule("storage",
//	    depository.ProvideSingleton("", NewDatabase),
//	    depository.Provide("", NewUserRepository),
//	    depository.ProvideAlias("db", depository.KeyOf[*Database]()),
//	)
func NewModule(name string, modules ...Module) Module {
	return func(d *Depository) error {
		for _, m := range modules {
			if m == nil {
				continue
			}

			if err := m(d); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}

		return nil
	}
}

// Provide registers concrete under key when the module is loaded.
func Provide(key string, concrete any) Module {
	return func(d *Depository) error {
		_, err := d.Register(key, concrete)
		return err
	}
}

// ProvideSingleton registers concrete as a singleton when the module is loaded.
func ProvideSingleton(key string, concrete any) Module {
	return func(d *Depository) error {
		_, err := d.Singleton(key, concrete)
		return err
	}
}

// ProvideInstance stores value under key when the module is loaded.
func ProvideInstance(key string, value any) Module {
	return func(d *Depository) error {
		return d.Instance(key, value)
	}
}

// ProvideAlias adds an alias when the module is loaded.
func ProvideAlias(alias, key string) Module {
	return func(d *Depository) error {
		return d.Alias(alias, key)
	}
}

// ProvideProviders adds service providers when the module is loaded.
func ProvideProviders(providers ...ServiceProvider) Module {
	return func(d *Depository) error {
		for _, p := range providers {
			if err := d.AddServiceProvider(p); err != nil {
				return err
			}
		}
		return nil
	}
}

// Load applies modules in order, stopping at the first failure.
func (d *Depository) Load(modules ...Module) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m(d); err != nil {
			return err
		}
	}
	return nil
}
