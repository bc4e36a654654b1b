// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

//go:build appengine || !(darwin || dragonfly || freebsd || openbsd || linux || netbsd || solaris || windows)

package refresh

import (
	"context"
	"runtime"
)

func (m *Monitor[T]) notify(context.Context) error {
	m.logger.Warn("File notification is not supported, falling back to polling.", "os", runtime.GOOS)

	return nil
}
