// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nil-go/refresh/internal"
)

// Monitor watches one configuration file and keeps a [Value] holding its
// decoded contents up to date.
//
// To create a new Monitor, call [New].
type Monitor[T any] struct {
	nocopy internal.NoCopy[Monitor[T]]

	// Options.
	logger         *slog.Logger
	pollInterval   time.Duration
	notification   bool
	unmarshal      func([]byte, any) error
	decodeHook     mapstructure.DecodeHookFunc
	tagName        string
	onStatus       func(bool, error)
	ignoreNotExist bool

	// Loaded configuration.
	path  string
	value *Value[T]

	// For watching changes.
	lastStamp atomic.Pointer[stamp]
	changedCh chan struct{}
	runOnce   sync.Once

	onChanges      []subscriber[T]
	nextID         uint64
	onChangesMutex sync.RWMutex
}

// New creates a Monitor for the file at the given path with the given
// Option(s), reading and decoding the file eagerly to seed the snapshot.
//
// It returns an error if the file cannot be read or decoded, except that
// a missing file only seeds the zero value when IgnoreFileNotExist is given.
// It panics if the path is empty.
func New[T any](path string, opts ...Option) (*Monitor[T], error) {
	if path == "" {
		panic("cannot monitor file with empty path")
	}

	option := &options{}
	for _, opt := range opts {
		opt(option)
	}
	if option.logger == nil {
		option.logger = slog.Default()
	}
	option.logger = option.logger.WithGroup("refresh")
	if option.unmarshal == nil {
		option.unmarshal = json.Unmarshal
	}
	if option.pollInterval <= 0 {
		option.pollInterval = DefaultPollInterval
	}

	monitor := &Monitor[T]{
		logger:         option.logger,
		pollInterval:   option.pollInterval,
		notification:   option.notification,
		unmarshal:      option.unmarshal,
		decodeHook:     option.decodeHook,
		tagName:        option.tagName,
		onStatus:       option.onStatus,
		ignoreNotExist: option.ignoreNotExist,
		path:           path,
		changedCh:      make(chan struct{}, 1),
	}

	value, _, err := monitor.load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	monitor.value = NewValue(value)

	return monitor, nil
}

// Data returns the shared container holding the current snapshot.
//
// The returned pointer stays valid for the lifetime of the Monitor;
// hand it to any code that needs to observe the latest configuration.
func (m *Monitor[T]) Data() *Value[T] {
	m.nocopy.Check()

	return m.value
}

// OnChange registers a callback function that is executed on the monitor
// goroutine after each new snapshot is published. It returns a function
// that removes the registration.
//
// The onChange function must be non-blocking and usually completes instantly.
// If it requires a long time to complete, it should be executed in a separate goroutine.
//
// This method is concurrency-safe.
// It panics if onChange is nil.
func (m *Monitor[T]) OnChange(onChange func(T)) func() {
	if onChange == nil {
		panic("cannot register nil onChange")
	}

	m.nocopy.Check()

	m.onChangesMutex.Lock()
	defer m.onChangesMutex.Unlock()

	m.nextID++
	id := m.nextID
	m.onChanges = append(m.onChanges, subscriber[T]{id: id, onChange: onChange})

	return func() {
		m.onChangesMutex.Lock()
		defer m.onChangesMutex.Unlock()

		for i, sub := range m.onChanges {
			if sub.id == id {
				m.onChanges = append(m.onChanges[:i], m.onChanges[i+1:]...)

				break
			}
		}
	}
}

// load reads and decodes the file, skipping the read if the file stamp
// matches the last successful load. The stamp is taken before the read and
// cleared on any failure so the next attempt retries in full.
func (m *Monitor[T]) load() (T, bool, error) { //nolint:cyclop
	var value T

	info, err := os.Stat(m.path)
	if err != nil {
		m.lastStamp.Store(nil)
		if m.ignoreNotExist && errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("Configuration file does not exist.", "file", m.path)

			return value, false, nil
		}

		return value, false, fmt.Errorf("stat file: %w", err)
	}
	newStamp := &stamp{modTime: info.ModTime(), size: info.Size()}
	if last := m.lastStamp.Load(); last != nil && last.equal(newStamp) {
		return value, false, nil
	}

	bytes, err := os.ReadFile(m.path)
	if err != nil {
		m.lastStamp.Store(nil)

		return value, false, fmt.Errorf("read file: %w", err)
	}

	var raw any
	if err := m.unmarshal(bytes, &raw); err != nil {
		m.lastStamp.Store(nil)

		return value, false, fmt.Errorf("unmarshal: %w", err)
	}

	decodeHook := m.decodeHook
	if decodeHook == nil {
		decodeHook = defaultDecodeHook
	}
	tagName := m.tagName
	if tagName == "" {
		tagName = "refresh"
	}
	decoder, err := mapstructure.NewDecoder(
		&mapstructure.DecoderConfig{
			Result:           &value,
			WeaklyTypedInput: true,
			DecodeHook:       decodeHook,
			TagName:          tagName,
		},
	)
	if err != nil {
		return value, false, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		m.lastStamp.Store(nil)

		return value, false, fmt.Errorf("decode: %w", err)
	}

	m.lastStamp.Store(newStamp)

	return value, true, nil
}

func (m *Monitor[T]) String() string {
	return "file:" + m.path
}

type subscriber[T any] struct {
	id       uint64
	onChange func(T)
}

// stamp identifies one observed state of the file. A write that changes
// neither the modification time nor the size is not re-read until the
// stamp moves.
type stamp struct {
	modTime time.Time
	size    int64
}

func (s *stamp) equal(other *stamp) bool {
	return s.modTime.Equal(other.modTime) && s.size == other.size
}

var defaultDecodeHook = mapstructure.ComposeDecodeHookFunc( //nolint:gochecknoglobals
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
	mapstructure.TextUnmarshallerHookFunc(),
)
