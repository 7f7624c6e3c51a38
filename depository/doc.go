// Package depository provides a dependency injection container that stores
// items under string keys and makes them on request.
//
// # Basic Usage
//
// Register constructors, then make them. Constructor parameters whose type is
// an interface, pointer, struct or named type are resolved by the key of
// that type:
//
//	d := depository.New()
//	defer d.Close()
//
//	d.Singleton("", NewDatabase)   // stored under KeyOf[*Database]()
//	d.Register("users", NewUserRepository)
//
//	repo, err := depository.Resolve[*UserRepository](d, "users")
//
// # Keys
//
// Keys are arbitrary strings. When registering with an empty key the key is
// derived from the constructor's return type, so autowired parameters find
// it. A constructor registered under another key is also reachable by its
// type key while no other registration claims it. KeyOf returns that derived
// key for a type.
//
// # Instances, References and Aliases
//
// Registering a value that is not a function stores it as a singleton under
// its type key, with the given key as an alias. Registering a string stores a
// reference that makes the named key; as a Singleton the result is shared,
// and With and Call apply to it. Instance stores a value under an exact key.
//
//	d.Register("config", cfg)               // KeyOf[*Config]() plus alias "config"
//	d.Singleton("db", "database.primary")   // reference
//	d.Alias("storage", "db")
//	d.Instance("app.name", "titon")
//
// Remove deletes a key together with every alias and reference that leads
// to it.
//
// # Arguments
//
// Explicit arguments fill parameters by position. They come from Make, or
// from Definition.With when Make passes none. A Ref argument is made first:
//
//	d.Register("mailer", NewMailer).With(depository.Ref("smtp"), "noreply@example.com")
//
// Parameters with builtin types must be supplied explicitly, or declared in a
// parameter object embedding In with a default tag.
//
// # Methods
//
// Method registers a method of a receiver; "key::Method" makes key and
// calls Method on the result. Definition.Call queues methods to run on every
// made value.
//
// # Cycles
//
// Circular registration is allowed. Making a key that is already being made
// in the same call chain fails with CircularDependencyError, as do concurrent
// makes of singletons that would wait on each other. Validate checks all
// registrations for cycles up front.
package depository
