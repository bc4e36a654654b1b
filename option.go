// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

package refresh

import (
	"log/slog"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// WithPollInterval provides the interval between checks of the configuration
// file for changes.
//
// The default interval is DefaultPollInterval. Non-positive intervals fall
// back to the default.
func WithPollInterval(interval time.Duration) Option {
	return func(options *options) {
		options.pollInterval = interval
	}
}

// WithNotification subscribes to file system notifications so that changes
// are picked up as they happen instead of on the next poll.
//
// Polling stays on as the reconciliation path since notifications may be
// dropped. On platforms without notification support it degrades to polling
// with a logged warning.
func WithNotification() Option {
	return func(options *options) {
		options.notification = true
	}
}

// WithUnmarshal provides the function used to parse the configuration file.
// The unmarshal function must be able to unmarshal the file content into
// the value pointed to by its second argument.
//
// The default function is json.Unmarshal.
func WithUnmarshal(unmarshal func([]byte, any) error) Option {
	return func(options *options) {
		options.unmarshal = unmarshal
	}
}

// WithDecodeHook provides the decode hook for decoding the parsed content
// into the configuration type.
//
// The default decode hook composes mapstructure.StringToTimeDurationHookFunc,
// mapstructure.StringToSliceHookFunc(",") and
// mapstructure.TextUnmarshallerHookFunc.
func WithDecodeHook(decodeHook mapstructure.DecodeHookFunc) Option {
	return func(options *options) {
		options.decodeHook = decodeHook
	}
}

// WithTagName provides the struct tag name that is read for field names
// when decoding.
//
// The default tag name is `refresh`.
func WithTagName(tagName string) Option {
	return func(options *options) {
		options.tagName = tagName
	}
}

// WithOnStatus provides the callback invoked after every reload attempt,
// with whether a new snapshot was published and the error if the attempt
// failed.
func WithOnStatus(onStatus func(changed bool, err error)) Option {
	return func(options *options) {
		options.onStatus = onStatus
	}
}

// IgnoreFileNotExist ignores the error if the configuration file is not
// found, both at construction and while monitoring. The snapshot starts at
// the zero value and the file is published once it appears.
func IgnoreFileNotExist() Option {
	return func(options *options) {
		options.ignoreNotExist = true
	}
}

// WithLogger provides the slog.Logger for the Monitor.
//
// By default, it uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// DefaultPollInterval is the poll interval used when WithPollInterval
// is not given.
const DefaultPollInterval = 5 * time.Minute

type (
	// Option configures a Monitor with specific options.
	Option func(options *options)

	// Options are kept non-generic so one Option works with any Monitor[T].
	options struct {
		logger         *slog.Logger
		pollInterval   time.Duration
		notification   bool
		unmarshal      func([]byte, any) error
		decodeHook     mapstructure.DecodeHookFunc
		tagName        string
		onStatus       func(changed bool, err error)
		ignoreNotExist bool
	}
)
