package reflection

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// KeyFor returns the container key for a type: the full package path and
// name for named types, prefixed with "*" per pointer level.
func KeyFor(t reflect.Type) string {
	if t == nil {
		return ""
	}

	if t.Kind() == reflect.Pointer {
		return "*" + KeyFor(t.Elem())
	}

	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}

	return t.String()
}

// KeyOf returns the container key for the dynamic type of v.
func KeyOf(v any) string {
	return KeyFor(reflect.TypeOf(v))
}

// IsInjectable reports whether a parameter of type t can be resolved by
// its type alone: interfaces other than error, pointers, structs and
// named types declared in a package.
func IsInjectable(t reflect.Type) bool {
	if t == nil || t == errType {
		return false
	}

	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Struct:
		return true
	}

	return t.Name() != "" && t.PkgPath() != ""
}

// ParseDefault converts a default tag value into a value of type t.
func ParseDefault(t reflect.Type, raw string) (reflect.Value, error) {
	v := reflect.New(t).Elem()

	if t == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid duration default %q: %w", raw, err)
		}
		v.SetInt(int64(d))
		return v, nil
	}

	switch t.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid bool default %q: %w", raw, err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid int default %q: %w", raw, err)
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid uint default %q: %w", raw, err)
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid float default %q: %w", raw, err)
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("default values are not supported for %v", t)
	}

	return v, nil
}
