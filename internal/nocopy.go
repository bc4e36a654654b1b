// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package internal

import (
	"reflect"
	"sync/atomic"
)

type NoCopy[T any] struct {
	addr atomic.Pointer[NoCopy[T]] // of receiver, to detect copies by value
}

func (c *NoCopy[T]) Check() {
	if c.addr.CompareAndSwap(nil, c) {
		return
	}

	if c.addr.Load() != c {
		panic("illegal use of non-zero " + reflect.TypeOf((*T)(nil)).Elem().Name() + " copied by value")
	}
}
