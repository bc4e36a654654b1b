// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh

import (
	"sync"

	"github.com/nil-go/refresh/internal"
)

// Value holds the latest decoded configuration snapshot behind a lock.
//
// A *Value is shared: every holder of the same pointer observes the same
// snapshot, updated by the owning [Monitor]. It performs no I/O.
//
// The zero Value is ready to use and holds the zero value of T.
type Value[T any] struct {
	nocopy internal.NoCopy[Value[T]]

	mutex sync.RWMutex
	value T
}

// NewValue creates a Value holding the given initial snapshot.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Load returns a copy of the current snapshot.
//
// It blocks only while a [Value.Store] is in progress.
func (v *Value[T]) Load() T {
	v.nocopy.Check()

	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.value
}

// View runs view with the current snapshot while holding the read lock,
// so no Store can begin until view returns.
//
// The view function must not call Load, View or Store on the same Value,
// and should complete quickly since it delays pending writes.
// It panics if view is nil.
func (v *Value[T]) View(view func(T)) {
	if view == nil {
		panic("cannot view value with nil view")
	}

	v.nocopy.Check()

	v.mutex.RLock()
	defer v.mutex.RUnlock()

	view(v.value)
}

// Store replaces the snapshot under the write lock.
//
// It waits for in-flight readers to finish, so a reader never observes
// a partially replaced value.
func (v *Value[T]) Store(value T) {
	v.nocopy.Check()

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.value = value
}
