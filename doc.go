// Copyright (c) 2025 The refresh authors
// Use of this source code is governed by a MIT license found in the LICENSE file.

/*
Package refresh keeps a typed snapshot of one configuration file up to date
for the lifetime of the process.

It defines a type, [Monitor], which loads and decodes the file once at
construction and then, while [Monitor.Run] is running, reloads it whenever
its contents change. The decoded snapshot lives in a [Value] shared between
the monitor and its consumers; readers always observe the last successfully
decoded configuration, so a malformed or missing file never disturbs them
beyond staleness.

The file format is opaque to the monitor: the bytes are parsed by an
unmarshal function (json.Unmarshal by default, replaceable with
[WithUnmarshal]) and then decoded into the application's configuration type.
*/
package refresh
