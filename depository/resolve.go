package depository

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/titon/framework/internal/reflection"
)

// resolution tracks the keys being made by one top-level Make.
type resolution struct {
	stack []string
	max   int
}

func newResolution(max int) *resolution {
	return &resolution{max: max}
}

func (r *resolution) enter(key string) error {
	for i, k := range r.stack {
		if k == key {
			path := append([]string{}, r.stack[i:]...)
			return CircularDependencyError{Path: append(path, key)}
		}
	}

	if len(r.stack) >= r.max {
		return MaxDepthError{Key: key, Depth: r.max, Path: append([]string{}, r.stack...)}
	}

	r.stack = append(r.stack, key)
	return nil
}

func (r *resolution) leave() {
	r.stack = r.stack[:len(r.stack)-1]
}

// invoke calls fn with its parameters filled from explicit arguments, the
// depository and default values, in that order.
func (d *Depository) invoke(rc *resolution, key string, fn reflect.Value, info *reflection.FuncInfo, explicit []any) (result any, err error) {
	in, err := d.arguments(rc, key, info, explicit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = ConstructorPanicError{
				Key:         key,
				Constructor: info.Type,
				Panic:       r,
				Stack:       debug.Stack(),
			}
		}
	}()

	out := fn.Call(in)

	if info.HasErrorReturn {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, ConstructorInvocationError{
				Key:         key,
				Constructor: info.Type,
				Cause:       errVal.Interface().(error),
			}
		}
	}

	if info.Result == nil {
		return nil, nil
	}

	return out[0].Interface(), nil
}

func (d *Depository) arguments(rc *resolution, key string, info *reflection.FuncInfo, explicit []any) ([]reflect.Value, error) {
	if info.IsParamObject {
		obj, err := d.paramObject(rc, key, info, explicit)
		if err != nil {
			return nil, err
		}
		return []reflect.Value{obj}, nil
	}

	in := make([]reflect.Value, 0, len(info.Parameters))

	for i, p := range info.Parameters {
		name := fmt.Sprintf("#%d", i)

		if p.Variadic {
			for j := i; j < len(explicit); j++ {
				v, err := d.argument(rc, explicit[j], p.Type.Elem(), fmt.Sprintf("argument #%d of %s", j, key))
				if err != nil {
					return nil, err
				}
				in = append(in, v)
			}
			break
		}

		if i < len(explicit) {
			v, err := d.argument(rc, explicit[i], p.Type, fmt.Sprintf("argument %s of %s", name, key))
			if err != nil {
				return nil, err
			}
			in = append(in, v)
			continue
		}

		if !p.Injectable {
			return nil, UnresolvableDependencyError{Key: key, Parameter: name, Type: p.Type}
		}

		inst, err := d.make(rc, p.Key, nil)
		if err != nil {
			if isMissing(err, p.Key) {
				return nil, UnresolvableDependencyError{Key: key, Parameter: name, Type: p.Type, Cause: err}
			}
			return nil, err
		}

		v, err := toValue(inst, p.Type, fmt.Sprintf("dependency %s of %s", name, key))
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}

	return in, nil
}

// paramObject builds an In struct. A single explicit argument of the
// struct type is used as is.
func (d *Depository) paramObject(rc *resolution, key string, info *reflection.FuncInfo, explicit []any) (reflect.Value, error) {
	paramType := info.Type.In(0)

	if len(explicit) == 1 && explicit[0] != nil {
		if v := reflect.ValueOf(explicit[0]); v.Type().AssignableTo(paramType) {
			return v, nil
		}
	}

	obj := reflect.New(info.ParamObject).Elem()

	for _, p := range info.Parameters {
		field := obj.Field(p.Index)

		var cause error
		if p.Injectable {
			inst, err := d.make(rc, p.Key, nil)
			if err == nil {
				v, err := toValue(inst, p.Type, fmt.Sprintf("field %s of %s", p.Name, key))
				if err != nil {
					return reflect.Value{}, err
				}
				field.Set(v)
				continue
			}
			if !isMissing(err, p.Key) {
				return reflect.Value{}, err
			}
			cause = err
		}

		if p.HasDefault {
			v, err := reflection.ParseDefault(p.Type, p.Default)
			if err != nil {
				return reflect.Value{}, UnresolvableDependencyError{Key: key, Parameter: p.Name, Type: p.Type, Cause: err}
			}
			field.Set(v)
			continue
		}

		if p.Optional {
			continue
		}

		return reflect.Value{}, UnresolvableDependencyError{Key: key, Parameter: p.Name, Type: p.Type, Cause: cause}
	}

	if info.PointerObject {
		return obj.Addr(), nil
	}
	return obj, nil
}

// argument converts an explicit argument, making Ref values first.
func (d *Depository) argument(rc *resolution, arg any, t reflect.Type, context string) (reflect.Value, error) {
	if ref, ok := arg.(Ref); ok && t != reflect.TypeOf(ref) {
		inst, err := d.make(rc, string(ref), nil)
		if err != nil {
			return reflect.Value{}, err
		}
		arg = inst
	}

	return toValue(arg, t, context)
}

// receiver returns a method receiver, making it when given a key.
func (d *Depository) receiver(rc *resolution, receiver any) (any, error) {
	if key, ok := receiver.(string); ok {
		return d.make(rc, key, nil)
	}
	return receiver, nil
}

// callMethod calls the named method of receiver with autowired parameters.
func (d *Depository) callMethod(rc *resolution, key string, receiver any, name string, args []any) (any, error) {
	fn, err := methodOf(receiver, name)
	if err != nil {
		return nil, err
	}

	info, err := d.analyzer.AnalyzeType(fn.Type())
	if err != nil {
		return nil, ReflectionAnalysisError{Target: receiver, Operation: "analyze", Cause: err}
	}

	return d.invoke(rc, key, fn, info, args)
}

func methodOf(receiver any, name string) (reflect.Value, error) {
	if receiver == nil {
		return reflect.Value{}, fmt.Errorf("%w: %s on nil receiver", ErrMethodNotFound, name)
	}

	fn := reflect.ValueOf(receiver).MethodByName(name)
	if !fn.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %T has no method %s", ErrMethodNotFound, receiver, name)
	}

	return fn, nil
}

// toValue converts v for use as a value of type t. Nil becomes the zero value.
func toValue(v any, t reflect.Type, context string) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}

	return reflect.Value{}, TypeMismatchError{Expected: t, Actual: rv.Type(), Context: context}
}

// isMissing reports whether err is the not-found error for key itself,
// rather than for something key depends on.
func isMissing(err error, key string) bool {
	var nf NotFoundError
	return errors.As(err, &nf) && nf.Key == key
}
