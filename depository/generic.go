package depository

import (
	"fmt"
	"reflect"

	"github.com/titon/framework/internal/reflection"
)

// KeyOf returns the key T is registered under when no key is given.
//
//	depository.KeyOf[*Database]() // "*example.com/app/storage.Database"
func KeyOf[T any]() string {
	return reflection.KeyFor(reflect.TypeOf((*T)(nil)).Elem())
}

// Resolve makes key and asserts the result to T. An empty key means KeyOf[T].
func Resolve[T any](d *Depository, key string, args ...any) (T, error) {
	var zero T

	if key == "" {
		key = KeyOf[T]()
	}

	inst, err := d.Make(key, args...)
	if err != nil {
		return zero, err
	}

	if inst == nil {
		return zero, nil
	}

	typed, ok := inst.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: reflect.TypeOf((*T)(nil)).Elem(),
			Actual:   reflect.TypeOf(inst),
			Context:  fmt.Sprintf("resolve %s", key),
		}
	}

	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](d *Depository, key string, args ...any) T {
	typed, err := Resolve[T](d, key, args...)
	if err != nil {
		panic(err)
	}
	return typed
}

// Bind registers a typed factory under KeyOf[T].
func Bind[T any](d *Depository, factory func(*Depository) (T, error)) (*Definition, error) {
	return d.Register(KeyOf[T](), factory)
}

// Share registers a typed factory under KeyOf[T] as a singleton.
func Share[T any](d *Depository, factory func(*Depository) (T, error)) (*Definition, error) {
	return d.Singleton(KeyOf[T](), factory)
}
