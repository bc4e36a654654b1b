// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh

import "context"

// Task is the handle of a monitor started with [Monitor.Start].
//
// Consumers join it at shutdown with [Task.Stop], or watch [Task.Done]
// to detect abnormal termination of the monitor.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done is closed
}

// Done returns a channel that is closed when the monitor has stopped,
// either by cancellation or by a watch-infrastructure failure.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the monitor stopped with, or nil if the monitor
// is still running or stopped cleanly.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Stop cancels the monitor, waits for it to finish, and returns its final
// error. The snapshot keeps its last published value and stays readable.
//
// It is safe to call multiple times.
func (t *Task) Stop() error {
	t.cancel()
	<-t.done

	return t.err
}
