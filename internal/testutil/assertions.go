package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titon/framework/depository"
	"github.com/titon/framework/event"
)

// AssertResolvable makes key (KeyOf[T] when empty) and returns the typed result
func AssertResolvable[T any](t *testing.T, d *depository.Depository, key string, args ...any) T {
	t.Helper()
	inst, err := depository.Resolve[T](d, key, args...)
	require.NoError(t, err, "failed to resolve %T", *new(T))
	return inst
}

// AssertNotFound checks that making key fails with a not found error
func AssertNotFound(t *testing.T, d *depository.Depository, key string) {
	t.Helper()
	_, err := d.Make(key)
	assert.Error(t, err)
	assert.True(t, depository.IsNotFound(err), "expected not found error, got: %v", err)
}

// AssertSingleton checks that two makes of key return the same instance
func AssertSingleton(t *testing.T, d *depository.Depository, key string) {
	t.Helper()
	first, err := d.Make(key)
	require.NoError(t, err)
	second, err := d.Make(key)
	require.NoError(t, err)
	assert.Same(t, first, second, "%s should be shared", key)
}

// AssertTransient checks that two makes of key return different instances
func AssertTransient(t *testing.T, d *depository.Depository, key string) {
	t.Helper()
	first, err := d.Make(key)
	require.NoError(t, err)
	second, err := d.Make(key)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "%s should not be shared", key)
}

// AssertErrorType checks if an error is of a specific type
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()
	var target T
	assert.ErrorAs(t, err, &target, msgAndArgs...)
	return target
}

// AssertCircularDependency checks if an error is a circular dependency error
func AssertCircularDependency(t *testing.T, err error) {
	t.Helper()
	assert.Error(t, err)
	assert.True(t, depository.IsCircularDependency(err), "expected circular dependency error, got: %v", err)
}

// AssertCallStack checks the observer IDs of event in call order
func AssertCallStack(t *testing.T, em *event.Emitter, name string, ids ...string) {
	t.Helper()
	assert.Equal(t, ids, em.CallStack(name))
}

// AssertStopped checks that ev was stopped with state
func AssertStopped(t *testing.T, ev *event.Event, state any) {
	t.Helper()
	require.NotNil(t, ev)
	assert.True(t, ev.IsStopped(), "%s should be stopped", ev.Key())
	assert.Equal(t, state, ev.State())
}

// AssertCompleted checks that every observer of ev ran without stopping it
func AssertCompleted(t *testing.T, ev *event.Event) {
	t.Helper()
	require.NotNil(t, ev)
	assert.False(t, ev.IsStopped(), "%s should not be stopped", ev.Key())
	assert.Equal(t, len(ev.CallStack()), ev.Index())
}
