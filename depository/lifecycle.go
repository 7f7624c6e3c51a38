package depository

import (
	"fmt"
	"io"
	"reflect"
)

// Close closes every singleton implementing io.Closer in reverse
// construction order. The depository cannot be used afterwards.
func (d *Depository) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	order := d.order
	closers := make([]io.Closer, 0, len(order))
	seen := make(map[any]bool, len(order))
	for _, key := range order {
		c, ok := d.singletons[key].(io.Closer)
		if !ok || c == io.Closer(d) {
			continue
		}
		// A singleton reference shares the instance of its target.
		if reflect.TypeOf(c).Comparable() {
			if seen[c] {
				continue
			}
			seen[c] = true
		}
		closers = append(closers, c)
	}
	d.order = nil
	d.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", closers[i], err))
		}
	}

	d.analyzer.Clear()
	d.logger.WithField("closed", len(closers)).Debug("closed depository")

	if len(errs) > 0 {
		return DisposalError{Errors: errs}
	}

	return nil
}

// IsClosed reports whether Close has been called.
func (d *Depository) IsClosed() bool {
	return d.closed.Load()
}
