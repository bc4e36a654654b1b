// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run watches the configuration file and updates the snapshot when it
// changes. It blocks until ctx is done, or the watch infrastructure fails.
//
// Per-reload errors (unreadable or undecodable file) are logged and reported
// through the WithOnStatus callback; they leave the snapshot untouched and
// never terminate the loop.
//
// It only can be called once. Call after first has no effects.
// It panics if ctx is nil.
func (m *Monitor[T]) Run(ctx context.Context) error {
	if ctx == nil {
		panic("cannot monitor change with nil context")
	}

	m.nocopy.Check()

	started := true
	m.runOnce.Do(func() {
		started = false
	})
	if started {
		m.logger.Warn("Monitor has been started, call Run again has no effects.")

		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	if m.notification {
		group.Go(func() error {
			return m.notify(ctx)
		})
	}
	group.Go(func() error {
		return m.poll(ctx)
	})

	return group.Wait()
}

// Start runs the monitor on its own goroutine and returns the handle for
// joining it. See [Monitor.Run] for the loop's behavior.
//
// It panics if ctx is nil.
func (m *Monitor[T]) Start(ctx context.Context) *Task {
	if ctx == nil {
		panic("cannot monitor change with nil context")
	}

	m.nocopy.Check()

	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(task.done)

		task.err = m.Run(ctx)
	}()

	return task
}

// poll serializes all reloads: ticks and notifications funnel into the
// capacity-1 trigger channel, so a new reload does not begin until the
// previous one completes and extra triggers coalesce.
func (m *Monitor[T]) poll(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.changed()
		case <-m.changedCh:
			value, changed, err := m.load()
			if m.onStatus != nil {
				m.onStatus(changed, err)
			}
			switch {
			case err != nil:
				m.logger.LogAttrs(
					ctx, slog.LevelWarn,
					"Error when reloading configuration file.",
					slog.String("file", m.path),
					slog.Any("error", err),
				)
			case changed:
				m.value.Store(value)
				m.logger.LogAttrs(
					ctx, slog.LevelInfo,
					"Configuration has been changed.",
					slog.String("file", m.path),
				)

				m.onChangesMutex.RLock()
				onChanges := make([]subscriber[T], len(m.onChanges))
				copy(onChanges, m.onChanges)
				m.onChangesMutex.RUnlock()
				for _, sub := range onChanges {
					sub.onChange(value)
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// changed triggers a reload on the monitor goroutine.
func (m *Monitor[T]) changed() {
	select {
	case m.changedCh <- struct{}{}:
	default:
		// Ignore if the channel is full since it's already triggered.
	}
}
