package depository

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/titon/framework/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================

var (
	ErrNotFound         = errors.New("item not found")
	ErrKeyEmpty         = errors.New("key cannot be empty")
	ErrConcreteNil      = errors.New("concrete cannot be nil")
	ErrSelfReference    = errors.New("key cannot reference itself")
	ErrDepositoryClosed = errors.New("depository has been closed")
	ErrMethodNotFound   = errors.New("method not found")
	ErrNotCallable      = errors.New("value is not callable")
	ErrProviderNil      = errors.New("service provider cannot be nil")
)

var (
	_ error = AlreadyRegisteredError{}
	_ error = NotFoundError{}
	_ error = UnresolvableDependencyError{}
	_ error = TypeMismatchError{}
	_ error = ReflectionAnalysisError{}
	_ error = ConstructorInvocationError{}
	_ error = ConstructorPanicError{}
	_ error = MaxDepthError{}
	_ error = ModuleError{}
	_ error = DisposalError{}
	_ error = CircularDependencyError{}
)

// ========================================
// Typed Errors
// ========================================

// CircularDependencyError reports a key that was requested while it was
// already being resolved.
type CircularDependencyError = graph.CircularDependencyError

// AlreadyRegisteredError indicates a key or alias is already taken.
type AlreadyRegisteredError struct {
	Key   string
	Alias bool
}

func (e AlreadyRegisteredError) Error() string {
	if e.Alias {
		return fmt.Sprintf("alias %q already registered", e.Key)
	}
	return fmt.Sprintf("item %q already registered (remove it first)", e.Key)
}

// NotFoundError indicates nothing could be made for a key.
type NotFoundError struct {
	Key       string
	Available []string // registered keys, used for suggestions
}

func (e NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("item not found: %s", e.Key))

	if similar := findSimilarKeys(e.Key, e.Available); len(similar) > 0 {
		b.WriteString("\n\nDid you mean one of these?\n")
		for _, key := range similar {
			b.WriteString(fmt.Sprintf("  • %s\n", key))
		}
	}

	return b.String()
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

// findSimilarKeys returns registered keys sharing the short name of target.
func findSimilarKeys(target string, available []string) []string {
	if target == "" || len(available) == 0 {
		return nil
	}

	short := strings.ToLower(shortName(target))

	var similar []string
	for _, key := range available {
		if key == target {
			continue
		}

		lower := strings.ToLower(key)
		if strings.ToLower(shortName(key)) == short ||
			strings.Contains(lower, short) ||
			strings.Contains(strings.ToLower(target), strings.ToLower(shortName(key))) {
			similar = append(similar, key)
		}

		if len(similar) >= 5 {
			break
		}
	}

	sort.Strings(similar)
	return similar
}

// shortName strips pointer markers and the package path from a key.
func shortName(key string) string {
	key = strings.TrimLeft(key, "*")
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}

// UnresolvableDependencyError indicates a parameter has neither an explicit
// argument, a resolvable type nor a default value.
type UnresolvableDependencyError struct {
	Key       string // item being created
	Parameter string // parameter position or field name
	Type      reflect.Type
	Cause     error
}

func (e UnresolvableDependencyError) Error() string {
	msg := fmt.Sprintf("cannot resolve dependency %s (%s) of %s", e.Parameter, formatType(e.Type), e.Key)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e UnresolvableDependencyError) Unwrap() error {
	return e.Cause
}

// TypeMismatchError indicates a value cannot be used where another type is required.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// ReflectionAnalysisError wraps a failure to analyze a function.
type ReflectionAnalysisError struct {
	Target    any
	Operation string
	Cause     error
}

func (e ReflectionAnalysisError) Error() string {
	return fmt.Sprintf("reflection %s failed for %T: %v", e.Operation, e.Target, e.Cause)
}

func (e ReflectionAnalysisError) Unwrap() error {
	return e.Cause
}

// ConstructorInvocationError wraps an error returned by a constructor.
type ConstructorInvocationError struct {
	Key         string
	Constructor reflect.Type
	Cause       error
}

func (e ConstructorInvocationError) Error() string {
	return fmt.Sprintf("failed to create %s with %s: %v", e.Key, formatType(e.Constructor), e.Cause)
}

func (e ConstructorInvocationError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a constructor panicked during invocation.
type ConstructorPanicError struct {
	Key         string
	Constructor reflect.Type
	Panic       any
	Stack       []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("constructor %s for %s panicked: %v\n", formatType(e.Constructor), e.Key, e.Panic))

	if len(e.Stack) > 0 {
		b.WriteString("\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// MaxDepthError indicates resolution nested deeper than allowed.
type MaxDepthError struct {
	Key   string
	Depth int
	Path  []string
}

func (e MaxDepthError) Error() string {
	return fmt.Sprintf("maximum resolution depth %d exceeded while making %s (path: %s)",
		e.Depth, e.Key, strings.Join(e.Path, " -> "))
}

// ModuleError wraps errors from module registration.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// DisposalError aggregates errors from closing singletons.
type DisposalError struct {
	Errors []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("disposal failed: %v", e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("disposal failed with %d errors:", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// IsNotFound reports whether err means a key could not be made.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyRegistered reports whether err is an AlreadyRegisteredError.
func IsAlreadyRegistered(err error) bool {
	var target AlreadyRegisteredError
	return errors.As(err, &target)
}

// IsCircularDependency reports whether err is a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var target CircularDependencyError
	return errors.As(err, &target)
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
