// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nil-go/refresh"
)

type idConfig struct {
	ID int
}

func TestMonitor_Run(t *testing.T) {
	t.Parallel()

	tmpFile := writeFile(t, `{"id": 1}`)

	var decodeErrors atomic.Int32
	monitor, err := refresh.New[idConfig](
		tmpFile,
		refresh.WithPollInterval(10*time.Millisecond),
		refresh.WithOnStatus(func(_ bool, err error) {
			if err != nil {
				decodeErrors.Add(1)
			}
		}),
	)
	require.NoError(t, err)
	require.Equal(t, 1, monitor.Data().Load().ID)

	ctx, cancel := context.WithCancel(context.Background())
	var waitGroup sync.WaitGroup
	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()

		assert.NoError(t, monitor.Run(ctx))
	}()

	// The file changes before the next tick; the snapshot follows it.
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"id": 22}`), 0o600))
	require.Eventually(t, func() bool {
		return monitor.Data().Load().ID == 22
	}, 5*time.Second, time.Millisecond)

	// A malformed file leaves the last good snapshot in place.
	require.NoError(t, os.WriteFile(tmpFile, []byte(`not a config`), 0o600))
	require.Eventually(t, func() bool {
		return decodeErrors.Load() > 0
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, 22, monitor.Data().Load().ID)

	// Fixing the file recovers within a tick.
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"id": 333}`), 0o600))
	require.Eventually(t, func() bool {
		return monitor.Data().Load().ID == 333
	}, 5*time.Second, time.Millisecond)

	cancel()
	waitGroup.Wait()
}

func TestMonitor_Run_file_appears(t *testing.T) {
	t.Parallel()

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	monitor, err := refresh.New[idConfig](
		tmpFile,
		refresh.IgnoreFileNotExist(),
		refresh.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	require.Equal(t, 0, monitor.Data().Load().ID)

	ctx, cancel := context.WithCancel(context.Background())
	var waitGroup sync.WaitGroup
	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()

		assert.NoError(t, monitor.Run(ctx))
	}()

	// The snapshot follows the file once it appears.
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"id": 7}`), 0o600))
	require.Eventually(t, func() bool {
		return monitor.Data().Load().ID == 7
	}, 5*time.Second, time.Millisecond)

	cancel()
	waitGroup.Wait()
}

func TestMonitor_Run_non_positive_interval(t *testing.T) {
	t.Parallel()

	for _, interval := range []time.Duration{0, -time.Second} {
		monitor, err := refresh.New[testConfig](
			"testdata/config.json",
			refresh.WithPollInterval(interval),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, monitor.Run(ctx))
	}
}

func TestMonitor_Run_serialized(t *testing.T) {
	t.Parallel()

	tmpFile := writeFile(t, `{"id": 0}`)

	var (
		inFlight   atomic.Int32
		overlapped atomic.Bool
	)
	monitor, err := refresh.New[idConfig](
		tmpFile,
		refresh.WithPollInterval(5*time.Millisecond),
		refresh.WithUnmarshal(func(bytes []byte, value any) error {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			defer inFlight.Add(-1)
			time.Sleep(20 * time.Millisecond) // slower than the poll interval

			return json.Unmarshal(bytes, value)
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var waitGroup sync.WaitGroup
	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()

		assert.NoError(t, monitor.Run(ctx))
	}()

	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf(`{"id": %d, "pad": %q}`, i, strings.Repeat("x", i))
		require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))
		time.Sleep(10 * time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return monitor.Data().Load().ID == 5
	}, 5*time.Second, time.Millisecond)
	require.False(t, overlapped.Load())

	cancel()
	waitGroup.Wait()
}

func TestMonitor_Stop(t *testing.T) {
	t.Parallel()

	tmpFile := writeFile(t, `{"id": 1}`)

	var loads atomic.Int32
	monitor, err := refresh.New[idConfig](
		tmpFile,
		refresh.WithPollInterval(10*time.Millisecond),
		refresh.WithOnStatus(func(bool, error) {
			loads.Add(1)
		}),
	)
	require.NoError(t, err)

	task := monitor.Start(context.Background())
	require.Eventually(t, func() bool {
		return loads.Load() > 2
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, task.Stop())

	// After Stop the file is never read again and the snapshot stays readable.
	frozen := loads.Load()
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"id": 22}`), 0o600))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, frozen, loads.Load())
	require.Equal(t, 1, monitor.Data().Load().ID)
}

func TestMonitor_Run_notification(t *testing.T) {
	t.Parallel()

	tmpFile := writeFile(t, `{"id": 1}`)

	// The poll interval is far too long to explain an update within the test.
	monitor, err := refresh.New[idConfig](
		tmpFile,
		refresh.WithPollInterval(time.Minute),
		refresh.WithNotification(),
	)
	require.NoError(t, err)

	published := make(chan idConfig, 1)
	monitor.OnChange(func(value idConfig) {
		published <- value
	})
	var removed atomic.Bool
	remove := monitor.OnChange(func(idConfig) {
		removed.Store(true)
	})
	remove()

	ctx, cancel := context.WithCancel(context.Background())
	var waitGroup sync.WaitGroup
	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()

		assert.NoError(t, monitor.Run(ctx))
	}()
	time.Sleep(time.Second) // wait for the watcher to start

	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"id": 22}`), 0o600))
	select {
	case value := <-published:
		require.Equal(t, 22, value.ID)
	case <-time.After(5 * time.Second):
		require.Fail(t, "timeout waiting for notification")
	}
	require.False(t, removed.Load())

	cancel()
	waitGroup.Wait()
}

func TestMonitor_Run_twice(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return attr
		},
	}))

	monitor, err := refresh.New[testConfig]("testdata/config.json", refresh.WithLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, monitor.Run(ctx))
	require.NoError(t, monitor.Run(ctx))
	require.Equal(t,
		"level=WARN msg=\"Monitor has been started, call Run again has no effects.\"\n",
		buf.String(),
	)
}

func TestMonitor_Run_nil_context(t *testing.T) {
	t.Parallel()

	defer func() {
		require.Equal(t, "cannot monitor change with nil context", recover())
	}()

	monitor, err := refresh.New[testConfig]("testdata/config.json")
	require.NoError(t, err)
	_ = monitor.Run(nil) //nolint:staticcheck

	t.Fail()
}

func TestMonitor_Start_nil_context(t *testing.T) {
	t.Parallel()

	defer func() {
		require.Equal(t, "cannot monitor change with nil context", recover())
	}()

	monitor, err := refresh.New[testConfig]("testdata/config.json")
	require.NoError(t, err)
	_ = monitor.Start(nil) //nolint:staticcheck

	t.Fail()
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))

	return tmpFile
}
